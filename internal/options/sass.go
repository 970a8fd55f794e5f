package options

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/loader"
	"github.com/toastate/sasspipe/internal/pipeline"
	"github.com/toastate/sasspipe/internal/store"
)

// Syntax selects the indented syntax: a SyntaxFlag or a SyntaxPattern.
type Syntax interface{ isSyntax() }

// SyntaxFlag is a fixed choice. Only callback results may use it.
type SyntaxFlag bool

func (SyntaxFlag) isSyntax() {}

// SyntaxPattern enables the indented syntax for the filenames it matches.
type SyntaxPattern []string

func (SyntaxPattern) isSyntax() {}

// SourceMapOption is a SourceMapFlag or a SourceMapPath.
type SourceMapOption interface{ isSourceMap() }

// SourceMapFlag requests a map next to the output.
type SourceMapFlag bool

func (SourceMapFlag) isSourceMap() {}

// SourceMapPath is an explicit map location relative to the destination
// root. Only callback results may use it.
type SourceMapPath string

func (SourceMapPath) isSourceMap() {}

// SassOptions is the authoring form of the compiler options.
type SassOptions struct {
	IndentedSyntax    Syntax
	SourceMap         SourceMapOption
	SourceMapEmbed    bool
	SourceMapContents bool
	OmitSourceMapURL  bool
	OutputStyle       string
	IncludePaths      []string
	Importer          ImporterInput
	Functions         Functions
	// Extra holds compiler flags passed through untouched.
	Extra map[string]any
}

func (*SassOptions) isSassOptionsInput() {}

// SassOptionsInput is a ModuleRef, a *SassOptions or a SassOptionsFunc.
type SassOptionsInput interface{ isSassOptionsInput() }

// FileContext is what a SassOptionsFunc receives for each file.
type FileContext struct {
	Filename                string
	File                    *store.File
	SourceFileFullpath      string
	DestinationFileFullpath string
	Pipeline                pipeline.Context
	// Files is the store as it was before the plugin started writing.
	Files         store.Files
	PluginOptions *PluginOptions
}

// SassOptionsFunc computes the options of one file. A nil result is an
// empty record.
type SassOptionsFunc func(ctx context.Context, fc *FileContext) (*SassOptions, error)

func (SassOptionsFunc) isSassOptionsInput() {}

// DynamicSassOptionsFunc is the untyped callback shape a module may export.
// Its results are checked on every call.
type DynamicSassOptionsFunc func(ctx context.Context, fc *FileContext) (any, error)

// Clone returns a copy that shares no slice or map with o.
func (o *SassOptions) Clone() *SassOptions {
	if o == nil {
		return &SassOptions{}
	}
	c := *o
	if p, ok := o.IndentedSyntax.(SyntaxPattern); ok {
		c.IndentedSyntax = append(SyntaxPattern{}, p...)
	}
	if o.IncludePaths != nil {
		c.IncludePaths = append([]string{}, o.IncludePaths...)
	}
	if o.Functions != nil {
		c.Functions = append(Functions{}, o.Functions...)
	}
	if o.Extra != nil {
		c.Extra = make(map[string]any, len(o.Extra))
		for k, v := range o.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// merge lays the fields set in o over base.
func (o *SassOptions) merge(base *SassOptions) *SassOptions {
	out := base.Clone()
	in := o.Clone()

	if in.IndentedSyntax != nil {
		out.IndentedSyntax = in.IndentedSyntax
	}
	if in.SourceMap != nil {
		out.SourceMap = in.SourceMap
	}
	out.SourceMapEmbed = out.SourceMapEmbed || in.SourceMapEmbed
	out.SourceMapContents = out.SourceMapContents || in.SourceMapContents
	out.OmitSourceMapURL = out.OmitSourceMapURL || in.OmitSourceMapURL
	if in.OutputStyle != "" {
		out.OutputStyle = in.OutputStyle
	}
	if in.IncludePaths != nil {
		out.IncludePaths = in.IncludePaths
	}
	if in.Importer != nil {
		out.Importer = in.Importer
	}
	if in.Functions != nil {
		out.Functions = in.Functions
	}
	if len(in.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		for k, v := range in.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// toSassOptions converts a loaded or returned value into an options record.
func toSassOptions(v any) (*SassOptions, bool, error) {
	switch t := v.(type) {
	case SassOptions:
		return t.Clone(), true, nil
	case *SassOptions:
		if t == nil {
			return nil, false, nil
		}
		return t, true, nil
	case *loader.Record:
		o, err := DecodeSassOptions(t)
		if err != nil {
			return nil, false, err
		}
		return o, true, nil
	}
	return nil, false, nil
}

func wrapDynamic(fn DynamicSassOptionsFunc, module string) SassOptionsFunc {
	return func(ctx context.Context, fc *FileContext) (*SassOptions, error) {
		v, err := fn(ctx, fc)
		if err != nil {
			return nil, err
		}
		o, ok, err := toSassOptions(v)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &loader.TypeError{
				Option: "sassOptions",
				Module: module,
				Msg:    fmt.Sprintf("Invalid sassOptions option. The function exported by this module does not return object: '%s'", module),
			}
		}
		return o, nil
	}
}

func importSassOptions(reg *loader.Registry, ref ModuleRef) (SassOptionsInput, error) {
	v, err := reg.LoadModule(string(ref), func(err error) string {
		return fmt.Sprintf("Loading sassOptions option failed: %s", err)
	})
	if err != nil {
		return nil, err
	}

	o, ok, err := toSassOptions(v)
	if err != nil {
		return nil, err
	}
	if ok {
		return normalizeSassRecord(reg, o)
	}

	switch fn := v.(type) {
	case SassOptionsFunc:
		if fn != nil {
			return fn, nil
		}
	case func(context.Context, *FileContext) (*SassOptions, error):
		if fn != nil {
			return SassOptionsFunc(fn), nil
		}
	case DynamicSassOptionsFunc:
		if fn != nil {
			return wrapDynamic(fn, string(ref)), nil
		}
	case func(context.Context, *FileContext) (any, error):
		if fn != nil {
			return wrapDynamic(fn, string(ref)), nil
		}
	}

	return nil, &loader.TypeError{
		Option: "sassOptions",
		Module: string(ref),
		Msg:    fmt.Sprintf("Invalid sassOptions option. Module does not export object or function: '%s'", ref),
	}
}

// normalizeSassOptions resolves the sassOptions field to a *SassOptions or
// a SassOptionsFunc.
func normalizeSassOptions(reg *loader.Registry, input SassOptionsInput) (SassOptionsInput, error) {
	switch t := input.(type) {
	case nil:
		return normalizeSassRecord(reg, nil)
	case ModuleRef:
		if t == "" {
			return normalizeSassRecord(reg, nil)
		}
		return importSassOptions(reg, t)
	case SassOptionsFunc:
		if t == nil {
			return normalizeSassRecord(reg, nil)
		}
		return t, nil
	case *SassOptions:
		return normalizeSassRecord(reg, t)
	}
	return nil, errors.Errorf("unsupported sassOptions input %T", input)
}

// normalizeSassRecord merges in over the default sass options and resolves
// the importer and functions fields.
func normalizeSassRecord(reg *loader.Registry, in *SassOptions) (*SassOptions, error) {
	defaults := DefaultOptions().SassOptions.(*SassOptions)
	if in == nil {
		return defaults, nil
	}

	out := in.merge(defaults)

	switch {
	case importerSet(in.Importer):
		importers, err := normalizeImporter(reg, in.Importer)
		if err != nil {
			return nil, err
		}
		out.Importer = importers
	case defaults.Importer != nil:
		out.Importer = defaults.Importer
	default:
		out.Importer = nil
	}

	switch {
	case in.Functions != nil:
		functions, err := normalizeFunctions(reg, in.Functions)
		if err != nil {
			return nil, err
		}
		out.Functions = functions
	case defaults.Functions != nil:
		out.Functions = defaults.Functions
	default:
		out.Functions = nil
	}

	return out, nil
}
