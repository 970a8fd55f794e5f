package options_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toastate/sasspipe/internal/compiler"
	"github.com/toastate/sasspipe/internal/loader"
	"github.com/toastate/sasspipe/internal/options"
	"github.com/toastate/sasspipe/internal/pipeline"
	"github.com/toastate/sasspipe/internal/store"
)

func normalize(t *testing.T, reg *loader.Registry, input options.Input) (*options.PluginOptions, error) {
	t.Helper()
	return options.Normalize(context.Background(), reg, store.New(), pipeline.New("/project"), input)
}

func rename(t *testing.T, o *options.PluginOptions, filename string) string {
	t.Helper()
	out, err := o.Renamer(context.Background(), filename)
	require.NoError(t, err)
	return out
}

func TestDefaultOptions_IsACopy(t *testing.T) {
	a := options.DefaultOptions()
	a.Pattern[0] = "changed"
	a.DependenciesKey = "changed"
	a.SassOptions.(*options.SassOptions).OutputStyle = "changed"

	b := options.DefaultOptions()
	assert.Equal(t, []string{"**/*.sass", "**/*.scss", "!**/_*"}, b.Pattern)
	assert.Empty(t, b.DependenciesKey)
	assert.Equal(t, &options.SassOptions{}, b.SassOptions)
}

func TestNormalize_Defaults(t *testing.T) {
	for _, input := range []options.Input{nil, &options.Config{}, (*options.Config)(nil)} {
		o, err := normalize(t, loader.NewRegistry(), input)
		require.NoError(t, err)

		assert.Equal(t, options.DefaultPattern(), o.Pattern)
		assert.Empty(t, o.DependenciesKey)
		assert.Equal(t, &options.SassOptions{}, o.SassOptions)
		assert.Equal(t, "sub/foo.css", rename(t, o, "sub/foo.scss"))
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	reg := loader.NewRegistry()
	first, err := normalize(t, reg, nil)
	require.NoError(t, err)
	second, err := normalize(t, reg, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Pattern, second.Pattern)
	assert.Equal(t, first.SassOptions, second.SassOptions)

	first.Pattern[0] = "mutated"
	third, err := normalize(t, reg, nil)
	require.NoError(t, err)
	assert.Equal(t, options.DefaultPattern(), third.Pattern)
}

func TestNormalize_FactoryCannotCorruptDefaults(t *testing.T) {
	reg := loader.NewRegistry()
	factory := options.Factory(func(_ context.Context, files *store.Store, p pipeline.Context, defaults *options.Config) (*options.Config, error) {
		require.NotNil(t, files)
		assert.Equal(t, "src", p.Source())

		defaults.Pattern[0] = "**/*.less"
		defaults.SassOptions.(*options.SassOptions).IncludePaths = []string{"/tmp"}
		defaults.DependenciesKey = "deps"
		return defaults, nil
	})

	o, err := normalize(t, reg, factory)
	require.NoError(t, err)
	assert.Equal(t, "**/*.less", o.Pattern[0])
	assert.Equal(t, "deps", o.DependenciesKey)
	assert.Equal(t, []string{"/tmp"}, o.SassOptions.(*options.SassOptions).IncludePaths)

	after, err := normalize(t, reg, nil)
	require.NoError(t, err)
	assert.Equal(t, options.DefaultPattern(), after.Pattern)
	assert.Equal(t, &options.SassOptions{}, after.SassOptions)
	assert.Equal(t, options.DefaultPattern(), options.DefaultOptions().Pattern)
}

func TestNormalize_Pattern(t *testing.T) {
	o, err := normalize(t, loader.NewRegistry(), &options.Config{Pattern: []string{}})
	require.NoError(t, err)
	assert.Equal(t, []string{}, o.Pattern)

	o, err = normalize(t, loader.NewRegistry(), &options.Config{Pattern: []string{"*.scss"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"*.scss"}, o.Pattern)
}

func TestNormalize_Renamer(t *testing.T) {
	reg := loader.NewRegistry()
	reg.Register("upper", func(s string) string { return strings.ToUpper(s) })
	reg.Register("truthy", map[string]any{"not": "a function"})
	reg.Register("falsy", false)

	tests := []struct {
		name  string
		input options.RenamerInput
		want  string
	}{
		{"unset", nil, "a/b.css"},
		{"true", options.RenameFlag(true), "a/b.css"},
		{"false", options.RenameFlag(false), "a/b.scss"},
		{"nil func", options.Renamer(nil), "a/b.scss"},
		{"empty ref", options.ModuleRef(""), "a/b.scss"},
		{"function module", options.ModuleRef("upper"), "A/B.SCSS"},
		{"truthy module", options.ModuleRef("truthy"), "a/b.css"},
		{"falsy module", options.ModuleRef("falsy"), "a/b.scss"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := normalize(t, reg, &options.Config{Renamer: tt.input})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rename(t, o, "a/b.scss"))
		})
	}

	_, err := normalize(t, reg, &options.Config{Renamer: options.ModuleRef("nope")})
	require.Error(t, err)
	var loadErr *loader.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "Loading renamer failed: cannot find module 'nope'", err.Error())
	assert.ErrorIs(t, err, loader.ErrModuleNotFound)
}

func TestNormalize_OptionsModule(t *testing.T) {
	reg := loader.NewRegistry()
	reg.Register("config", options.Config{DependenciesKey: "deps"})
	reg.Register("record", loader.NewRecord("pattern", "*.scss", "renamer", false))
	reg.Register("number", 42)

	o, err := normalize(t, reg, options.ModuleRef("config"))
	require.NoError(t, err)
	assert.Equal(t, "deps", o.DependenciesKey)

	o, err = normalize(t, reg, options.ModuleRef("record"))
	require.NoError(t, err)
	assert.Equal(t, []string{"*.scss"}, o.Pattern)
	assert.Equal(t, "x.scss", rename(t, o, "x.scss"))

	_, err = normalize(t, reg, options.ModuleRef("number"))
	var typeErr *loader.TypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "number", typeErr.Module)
}

func TestNormalize_SassOptionsModule(t *testing.T) {
	reg := loader.NewRegistry()
	reg.Register("record", &options.SassOptions{OutputStyle: compiler.OutputStyleCompressed})
	reg.Register("data", loader.NewRecord("outputStyle", "compressed", "precision", 5))
	reg.Register("callback", func(context.Context, *options.FileContext) (*options.SassOptions, error) {
		return &options.SassOptions{OutputStyle: "expanded"}, nil
	})
	reg.Register("dynamic", func(_ context.Context, fc *options.FileContext) (any, error) {
		if fc.Filename == "good.scss" {
			return loader.NewRecord("outputStyle", "compressed"), nil
		}
		return "not a record", nil
	})
	reg.Register("number", 1)

	o, err := normalize(t, reg, &options.Config{SassOptions: options.ModuleRef("record")})
	require.NoError(t, err)
	assert.Equal(t, &options.SassOptions{OutputStyle: "compressed"}, o.SassOptions)

	o, err = normalize(t, reg, &options.Config{SassOptions: options.ModuleRef("data")})
	require.NoError(t, err)
	assert.Equal(t, &options.SassOptions{OutputStyle: "compressed", Extra: map[string]any{"precision": 5}}, o.SassOptions)

	o, err = normalize(t, reg, &options.Config{SassOptions: options.ModuleRef("callback")})
	require.NoError(t, err)
	_, ok := o.SassOptions.(options.SassOptionsFunc)
	assert.True(t, ok)

	o, err = normalize(t, reg, &options.Config{SassOptions: options.ModuleRef("dynamic")})
	require.NoError(t, err)
	fn, ok := o.SassOptions.(options.SassOptionsFunc)
	require.True(t, ok)

	res, err := fn(context.Background(), &options.FileContext{Filename: "good.scss"})
	require.NoError(t, err)
	assert.Equal(t, "compressed", res.OutputStyle)

	_, err = fn(context.Background(), &options.FileContext{Filename: "bad.scss"})
	require.Error(t, err)
	assert.Equal(t, "Invalid sassOptions option. The function exported by this module does not return object: 'dynamic'", err.Error())

	_, err = normalize(t, reg, &options.Config{SassOptions: options.ModuleRef("number")})
	require.Error(t, err)
	assert.Equal(t, "Invalid sassOptions option. Module does not export object or function: 'number'", err.Error())

	_, err = normalize(t, reg, &options.Config{SassOptions: options.ModuleRef("missing")})
	require.Error(t, err)
	assert.Equal(t, "Loading sassOptions option failed: cannot find module 'missing'", err.Error())
}

func importerFor(id string) compiler.Importer {
	return func(string, string) (*compiler.Import, error) {
		return &compiler.Import{Contents: id}, nil
	}
}

func importerIDs(t *testing.T, o *options.PluginOptions) []string {
	t.Helper()
	so, ok := o.SassOptions.(*options.SassOptions)
	require.True(t, ok)
	list, ok := so.Importer.(options.ImporterList)
	require.True(t, ok, "importer is %T", so.Importer)

	var ids []string
	for _, imp := range list {
		res, err := imp("", "")
		require.NoError(t, err)
		ids = append(ids, res.Contents)
	}
	return ids
}

func TestNormalize_Importer(t *testing.T) {
	reg := loader.NewRegistry()
	reg.Register("single", importerFor("single"))
	reg.Register("list", []compiler.Importer{importerFor("list-1"), importerFor("list-2")})
	reg.Register("gen", loader.Generator(func(args any) (any, error) {
		return importerFor("gen-" + args.(string)), nil
	}))
	reg.Register("gen-list", func(args any) any {
		return []any{importerFor("genlist-a"), importerFor("genlist-b")}
	})
	reg.Register("not-importer", "text")
	reg.Register("nested", []any{[]compiler.Importer{importerFor("x")}})
	reg.Register("bad-gen", func(any) any { return 3 })

	tests := []struct {
		name  string
		input options.ImporterInput
		want  []string
	}{
		{"function", options.Importer(importerFor("fn")), []string{"fn"}},
		{"list", options.ImporterList{importerFor("a"), importerFor("b")}, []string{"a", "b"}},
		{"module", options.ModuleRef("single"), []string{"single"}},
		{"module list", options.ModuleRef("list"), []string{"list-1", "list-2"}},
		{
			"mixed inputs",
			options.ImporterInputs{
				options.ModuleRef("list"),
				options.Importer(importerFor("fn")),
				options.ImporterGenerators{{Module: "gen", Args: "1"}},
			},
			[]string{"list-1", "list-2", "fn", "gen-1"},
		},
		{
			"generators",
			options.ImporterGenerators{{Module: "gen-list"}, {Module: "gen", Args: "2"}, {Module: "gen", Args: "3"}},
			[]string{"genlist-a", "genlist-b", "gen-2", "gen-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := normalize(t, reg, &options.Config{SassOptions: &options.SassOptions{Importer: tt.input}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, importerIDs(t, o))
		})
	}

	errTests := []struct {
		name  string
		input options.ImporterInput
		want  string
	}{
		{"not importer", options.ModuleRef("not-importer"), "Invalid importer option. Module does not export valid importer: 'not-importer'"},
		{"nested list", options.ModuleRef("nested"), "Invalid importer option. Module does not export valid importer: 'nested'"},
		{"generator not function", options.ImporterGenerators{{Module: "single"}}, "Loading importer option generator failed. Module does not export function: 'single'"},
		{"generator bad result", options.ImporterGenerators{{Module: "bad-gen"}}, "Invalid importer option. The function exported by this module does not return valid importer: 'bad-gen'"},
		{"missing", options.ModuleRef("missing"), "Loading importer option failed: cannot find module 'missing'"},
		{"nil in list", options.ImporterList{importerFor("a"), nil}, "Invalid importer option. The importer list contains a value that is not a valid importer"},
		{"nil in inputs", options.ImporterInputs{options.ImporterList{nil}}, "Invalid importer option. The importer list contains a value that is not a valid importer"},
	}

	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := normalize(t, reg, &options.Config{SassOptions: &options.SassOptions{Importer: tt.input}})
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestNormalize_ImporterNilEntry(t *testing.T) {
	_, err := normalize(t, loader.NewRegistry(), &options.Config{SassOptions: &options.SassOptions{
		Importer: options.ImporterList{nil},
	}})
	var typeErr *loader.TypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "importer", typeErr.Option)
	assert.Empty(t, typeErr.Module)
}

func TestNormalize_ImporterUnset(t *testing.T) {
	for _, input := range []options.ImporterInput{nil, options.ModuleRef(""), options.Importer(nil)} {
		o, err := normalize(t, loader.NewRegistry(), &options.Config{SassOptions: &options.SassOptions{Importer: input}})
		require.NoError(t, err)
		assert.Nil(t, o.SassOptions.(*options.SassOptions).Importer)
	}
}

func callFunctions(t *testing.T, o *options.PluginOptions) map[string]string {
	t.Helper()
	so := o.SassOptions.(*options.SassOptions)
	out := map[string]string{}
	for _, cf := range so.Functions.CustomFunctions() {
		v, err := cf.Func(context.Background(), []string{"2"})
		require.NoError(t, err)
		out[cf.Signature] = v
	}
	return out
}

func TestNormalize_Functions(t *testing.T) {
	reg := loader.NewRegistry()
	reg.Register("sqrt", func(_ context.Context, args []string) (string, error) { return "sqrt(" + args[0] + ")", nil })
	reg.Register("scale", func(args any) any {
		factor := args.(string)
		return options.Function(func(_ context.Context, in []string) (string, error) {
			return in[0] + "*" + factor, nil
		})
	})

	o, err := normalize(t, reg, &options.Config{SassOptions: &options.SassOptions{
		Functions: options.Functions{
			{Signature: "sqrt($n)", Value: options.ModuleRef("sqrt")},
			{Signature: "skip($n)", Value: nil},
			{Signature: "empty($n)", Value: options.ModuleRef("")},
			{Signature: "inline($n)", Value: options.Function(func(_ context.Context, in []string) (string, error) { return "inline", nil })},
			{Signature: "scale($n)", Value: options.FunctionGenerator{"scale": "3"}},
		},
	}})
	require.NoError(t, err)

	so := o.SassOptions.(*options.SassOptions)
	var signatures []string
	for _, e := range so.Functions {
		signatures = append(signatures, e.Signature)
	}
	assert.Equal(t, []string{"sqrt($n)", "inline($n)", "scale($n)"}, signatures)
	assert.Equal(t, map[string]string{
		"sqrt($n)":   "sqrt(2)",
		"inline($n)": "inline",
		"scale($n)":  "2*3",
	}, callFunctions(t, o))
}

func TestNormalize_FunctionsGeneratorArity(t *testing.T) {
	for _, gen := range []options.FunctionGenerator{{}, {"a": 1, "b": 2}} {
		_, err := normalize(t, loader.NewRegistry(), &options.Config{SassOptions: &options.SassOptions{
			Functions: options.Functions{{Signature: "f($x)", Value: gen}},
		}})
		require.Error(t, err)

		var typeErr *loader.TypeError
		require.ErrorAs(t, err, &typeErr)
		msg := err.Error()
		assert.True(t, strings.HasPrefix(msg, "Invalid functions option."+
			" The number of object properties specified in the function option value must be one."))
		assert.Contains(t, msg, "But the number of properties is ")
		assert.Contains(t, msg, "f($x)")

		lines := strings.Split(msg, "\n")
		require.Greater(t, len(lines), 1)
		for _, l := range lines[1:] {
			if l != "" {
				assert.True(t, strings.HasPrefix(l, "  "), "line %q is not indented", l)
			}
		}
	}
}

func TestNormalize_FunctionsErrors(t *testing.T) {
	reg := loader.NewRegistry()
	reg.Register("text", "not a function")

	_, err := normalize(t, reg, &options.Config{SassOptions: &options.SassOptions{
		Functions: options.Functions{{Signature: "f($x)", Value: options.ModuleRef("text")}},
	}})
	require.Error(t, err)
	assert.Equal(t, "Invalid functions option. Module does not export function: 'text'", err.Error())

	_, err = normalize(t, reg, &options.Config{SassOptions: &options.SassOptions{
		Functions: options.Functions{{Signature: "f($x)", Value: options.FunctionGenerator{"text": nil}}},
	}})
	require.Error(t, err)
	assert.Equal(t, "Loading functions option generator failed. Module does not export function: 'text'", err.Error())
}
