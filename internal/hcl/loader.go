package hcl

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/nodepipe/internal/config"
	"github.com/vk/nodepipe/internal/ctxlog"
	"github.com/vk/nodepipe/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL pipeline loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// parsedFile keeps what the first pass left of one file for the second pass.
type parsedFile struct {
	name string
	body hcl.Body
}

// Load parses every .hcl file found in paths. Variables of all files are
// evaluated before any node block, so a node may use variables declared in
// another file.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	vars := make(map[string]cty.Value)
	var parsed []parsedFile

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root variablesRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		for _, block := range root.Variables {
			if err := evalVariables(block.Body, vars); err != nil {
				return nil, fmt.Errorf("failed to evaluate variables in %s: %w", file, err)
			}
		}
		parsed = append(parsed, parsedFile{name: file, body: root.Remain})
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.ObjectVal(vars)},
		Functions: functions(),
	}

	model := &config.Model{Variables: make(map[string]any, len(vars))}
	for name, v := range vars {
		if model.Variables[name], err = ctyValueToInterface(v); err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
	}

	for _, f := range parsed {
		var root pipelineRoot
		if diags := gohcl.DecodeBody(f.body, evalCtx, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", f.name, diags)
		}
		for _, nb := range root.Nodes {
			n, err := l.translateNode(ctx, nb, evalCtx)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.name, err)
			}
			n.Source = f.name
			model.Nodes = append(model.Nodes, n)
		}
		for _, mb := range root.Metas {
			n := l.translateMeta(mb)
			n.Source = f.name
			model.Nodes = append(model.Nodes, n)
		}
		for _, ib := range root.Indexes {
			n := l.translateIndex(ib)
			n.Source = f.name
			model.Nodes = append(model.Nodes, n)
		}
	}

	logger.Debug("HCL loading complete.", "files", len(files), "nodes", len(model.Nodes), "variables", len(vars))
	return model, nil
}

func evalVariables(body hcl.Body, vars map[string]cty.Value) error {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return diags
	}
	for name, attr := range attrs {
		if _, ok := vars[name]; ok {
			return fmt.Errorf("variable %q is declared more than once", name)
		}
		// Variables may use functions but not other variables.
		v, diags := attr.Expr.Value(&hcl.EvalContext{Functions: functions()})
		if diags.HasErrors() {
			return diags
		}
		vars[name] = v
	}
	return nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl
// files found, without duplicates.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("pipeline path %s does not exist", path)
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if _, wasSeen := seen[f]; !wasSeen {
				allFiles = append(allFiles, f)
				seen[f] = struct{}{}
			}
		}
	}
	return allFiles, nil
}
