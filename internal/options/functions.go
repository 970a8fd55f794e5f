package options

import (
	"context"
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/compiler"
	"github.com/toastate/sasspipe/internal/loader"
)

// FunctionInput is a ModuleRef, a Function or a FunctionGenerator.
type FunctionInput interface{ isFunctionInput() }

// Function implements a custom Sass function.
type Function func(ctx context.Context, args []string) (string, error)

func (Function) isFunctionInput() {}

// FunctionGenerator maps exactly one generator module to its arguments.
type FunctionGenerator map[string]any

func (FunctionGenerator) isFunctionInput() {}

// FunctionEntry binds a Sass signature such as "pow($a, $b)" to its
// implementation.
type FunctionEntry struct {
	Signature string
	Value     FunctionInput
}

// Functions keeps the declaration order of custom functions.
type Functions []FunctionEntry

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	MaxDepth:                2,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

func asFunction(v any) (compiler.Function, bool) {
	switch fn := v.(type) {
	case compiler.Function:
		return fn, fn != nil
	case Function:
		return compiler.Function(fn), fn != nil
	case func(context.Context, []string) (string, error):
		return fn, fn != nil
	}
	return nil, false
}

func functionSet(v FunctionInput) bool {
	switch t := v.(type) {
	case nil:
		return false
	case ModuleRef:
		return t != ""
	case Function:
		return t != nil
	}
	return true
}

func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}

func normalizeFunctionGenerator(reg *loader.Registry, signature string, gen FunctionGenerator) (compiler.Function, error) {
	if len(gen) != 1 {
		dump := dumpConfig.Sdump(map[string]any{signature: map[string]any(gen)})
		return nil, &loader.TypeError{
			Option: "functions",
			Msg: fmt.Sprintf("Invalid functions option."+
				" The number of object properties specified in the function option value must be one."+
				" But the number of properties is %d:\n%s", len(gen), indent(strings.TrimRight(dump, "\n"), 2)),
		}
	}

	for module, args := range gen {
		return loader.LoadOptionGenerator(reg, module, args, "functions", asFunction, "function")
	}
	return nil, nil
}

// normalizeFunctions resolves every entry to a Function, dropping unset
// values and keeping the order.
func normalizeFunctions(reg *loader.Registry, in Functions) (Functions, error) {
	out := Functions{}
	for _, entry := range in {
		if !functionSet(entry.Value) {
			continue
		}

		var (
			fn  compiler.Function
			err error
		)
		switch v := entry.Value.(type) {
		case ModuleRef:
			fn, err = loader.LoadOption(reg, string(v), "functions", asFunction, "function")
		case Function:
			fn = compiler.Function(v)
		case FunctionGenerator:
			fn, err = normalizeFunctionGenerator(reg, entry.Signature, v)
		default:
			err = errors.Errorf("unsupported function input %T for %q", entry.Value, entry.Signature)
		}
		if err != nil {
			return nil, err
		}

		out = append(out, FunctionEntry{Signature: entry.Signature, Value: Function(fn)})
	}
	return out, nil
}

// CustomFunctions converts normalized entries for the compiler.
func (fs Functions) CustomFunctions() []compiler.CustomFunction {
	var out []compiler.CustomFunction
	for _, e := range fs {
		if fn, ok := e.Value.(Function); ok && fn != nil {
			out = append(out, compiler.CustomFunction{Signature: e.Signature, Func: compiler.Function(fn)})
		}
	}
	return out
}
