package atomiccmd

import (
	"regexp"
	"strings"
)

// Binding roles understood by Builder.SetKwargs.
const (
	RoleStdin  = "IN_STDIN"
	RoleStdout = "OUT_STDOUT"
	RoleStderr = "OUT_STDERR"

	// TempDirToken expands to the command's working directory.
	TempDirToken = "TEMP_DIR"

	inputPrefix      = "IN_"
	outputPrefix     = "OUT_"
	tempOutputPrefix = "TEMP_OUT_"
)

// Pipe binds OUT_STDOUT or IN_STDIN to the adjacent process of a ParallelSet
// instead of a file.
var Pipe = pipeMarker{}

type pipeMarker struct{}

func (pipeMarker) String() string { return "<pipe>" }

var placeholderRegex = regexp.MustCompile(`\{([A-Z][A-Z0-9_]*)\}`)

func isInputRole(role string) bool {
	return strings.HasPrefix(role, inputPrefix)
}

func isOutputRole(role string) bool {
	return strings.HasPrefix(role, outputPrefix)
}

func isTempOutputRole(role string) bool {
	return strings.HasPrefix(role, tempOutputPrefix)
}

func isRole(name string) bool {
	return name == TempDirToken || isInputRole(name) || isOutputRole(name) || isTempOutputRole(name)
}

// placeholders returns the role tokens referenced by s. Brace tokens that do
// not look like a role (e.g. awk's '{print $1}' or '{NR}') are left alone.
func placeholders(s string) []string {
	var roles []string
	for _, m := range placeholderRegex.FindAllStringSubmatch(s, -1) {
		if isRole(m[1]) {
			roles = append(roles, m[1])
		}
	}
	return roles
}

// expand replaces every role token in s using resolve. Tokens resolve cannot
// map are kept verbatim; Finalize guarantees that does not happen for roles.
func expand(s string, resolve func(role string) (string, bool)) string {
	return placeholderRegex.ReplaceAllStringFunc(s, func(tok string) string {
		role := tok[1 : len(tok)-1]
		if !isRole(role) {
			return tok
		}
		if v, ok := resolve(role); ok {
			return v
		}
		return tok
	})
}
