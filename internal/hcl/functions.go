package hcl

import (
	"os"
	"path/filepath"

	"github.com/vk/nodepipe/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

func functions() map[string]function.Function {
	return map[string]function.Function{
		"add_postfix": addPostfixFunc,
		"basename":    basenameFunc,
		"concat":      stdlib.ConcatFunc,
		"env":         envFunc,
		"format":      stdlib.FormatFunc,
		"join":        stdlib.JoinFunc,
		"lower":       stdlib.LowerFunc,
		"replace":     stdlib.ReplaceFunc,
		"swap_ext":    swapExtFunc,
		"upper":       stdlib.UpperFunc,
	}
}

// envFunc returns the value of an environment variable, or the optional
// default when it is unset.
var envFunc = function.New(&function.Spec{
	Params:   []function.Parameter{{Name: "name", Type: cty.String}},
	VarParam: &function.Parameter{Name: "default", Type: cty.String},
	Type:     function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if v, ok := os.LookupEnv(args[0].AsString()); ok {
			return cty.StringVal(v), nil
		}
		if len(args) > 1 {
			return args[1], nil
		}
		return cty.StringVal(""), nil
	},
})

var swapExtFunc = pathFunc2("ext", fsutil.SwapExt)

var addPostfixFunc = pathFunc2("postfix", fsutil.AddPostfix)

var basenameFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "path", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(filepath.Base(args[0].AsString())), nil
	},
})

func pathFunc2(second string, fn func(string, string) string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "path", Type: cty.String},
			{Name: second, Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.StringVal(fn(args[0].AsString(), args[1].AsString())), nil
		},
	})
}
