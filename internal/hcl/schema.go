package hcl

import (
	"github.com/hashicorp/hcl/v2"
)

// variablesRoot decodes the first pass: variables blocks only.
type variablesRoot struct {
	Variables []*variablesBlock `hcl:"variables,block"`
	Remain    hcl.Body          `hcl:",remain"`
}

type variablesBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// pipelineRoot decodes the second pass over what the first pass left.
type pipelineRoot struct {
	Nodes   []*nodeBlock  `hcl:"node,block"`
	Metas   []*metaBlock  `hcl:"meta,block"`
	Indexes []*indexBlock `hcl:"index,block"`
}

type nodeBlock struct {
	Name        string          `hcl:"name,label"`
	Description *string         `hcl:"description,optional"`
	DependsOn   []string        `hcl:"depends_on,optional"`
	Mode        *string         `hcl:"mode,optional"`
	Commands    []*commandBlock `hcl:"command,block"`
}

type metaBlock struct {
	Name        string   `hcl:"name,label"`
	Description *string  `hcl:"description,optional"`
	DependsOn   []string `hcl:"depends_on,optional"`
}

type indexBlock struct {
	Name        string   `hcl:"name,label"`
	Kind        string   `hcl:"kind"`
	Input       string   `hcl:"input"`
	Description *string  `hcl:"description,optional"`
	DependsOn   []string `hcl:"depends_on,optional"`
}

type commandBlock struct {
	Name             string            `hcl:"name,label"`
	Argv             []string          `hcl:"argv,optional"`
	Shell            *string           `hcl:"shell,optional"`
	Inputs           map[string]string `hcl:"inputs,optional"`
	Outputs          map[string]string `hcl:"outputs,optional"`
	TempOutputs      map[string]string `hcl:"temp_outputs,optional"`
	Stdin            *string           `hcl:"stdin,optional"`
	Stdout           *string           `hcl:"stdout,optional"`
	Stderr           *string           `hcl:"stderr,optional"`
	AllowEmptyOutput *bool             `hcl:"allow_empty_output,optional"`
	Overrides        hcl.Expression    `hcl:"options,optional"`
	Options          []*optionBlock    `hcl:"option,block"`
}

type optionBlock struct {
	Flag  string         `hcl:"flag,label"`
	Value hcl.Expression `hcl:"value,optional"`
}
