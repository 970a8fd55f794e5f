package options

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/compiler"
	"github.com/toastate/sasspipe/internal/loader"
	"github.com/toastate/sasspipe/internal/store"
)

var (
	// ErrForbiddenSourceMapString rejects a static record with an explicit
	// map path: every matched file would claim the same map.
	ErrForbiddenSourceMapString = &loader.TypeError{
		Option: "sassOptions",
		Msg: "String values for SASS sourceMap option are forbidden." +
			" The Source Map filepath must be defined for each file to be processed." +
			" You need to specify a callback function in sassOptions and define the sourceMap option with a different value for each file.",
	}

	// ErrForbiddenIndentedSyntaxBool rejects a static record with a fixed
	// indentedSyntax.
	ErrForbiddenIndentedSyntaxBool = &loader.TypeError{
		Option: "sassOptions",
		Msg: "Boolean values for SASS indentedSyntax option are forbidden." +
			" The indentedSyntax option must be defined for each file to be processed." +
			" Instead, specify a glob pattern for files where the indentedSyntax option is true." +
			" Alternatively, specify a callback function for the sassOptions option and specify boolean for the indentedSyntax option in the return value of the function.",
	}

	// ErrInvalidCallbackIndentedSyntax rejects a callback result whose
	// indentedSyntax is not a boolean.
	ErrInvalidCallbackIndentedSyntax = &loader.TypeError{
		Option: "sassOptions",
		Msg: "Invalid indentedSyntax option returned by the sassOptions callback." +
			" The callback already runs for a single file, so the value must be a boolean or left unset.",
	}
)

// CompilerOptions resolves the compiler options of the file described by fc.
// destBase is the absolute destination root explicit map paths resolve
// against. A nil reg means loader.Default.
func CompilerOptions(ctx context.Context, reg *loader.Registry, opts *PluginOptions, fc *FileContext, destBase string) (*compiler.Options, error) {
	if reg == nil {
		reg = loader.Default
	}

	var (
		so       *SassOptions
		indented *bool
	)

	switch in := opts.SassOptions.(type) {
	case SassOptionsFunc:
		res, err := in(ctx, fc)
		if err != nil {
			return nil, errors.WithMessagef(err, "sassOptions callback for %s", fc.Filename)
		}
		if res == nil {
			res = &SassOptions{}
		}
		switch s := res.IndentedSyntax.(type) {
		case nil:
		case SyntaxFlag:
			b := bool(s)
			indented = &b
		default:
			return nil, ErrInvalidCallbackIndentedSyntax
		}
		so = res.Clone()

	case *SassOptions:
		if _, ok := in.SourceMap.(SourceMapPath); ok {
			return nil, ErrForbiddenSourceMapString
		}
		switch s := in.IndentedSyntax.(type) {
		case nil:
		case SyntaxFlag:
			return nil, ErrForbiddenIndentedSyntaxBool
		case SyntaxPattern:
			matched, err := store.MatchAny(fc.Filename, s)
			if err != nil {
				return nil, errors.WithMessage(err, "indentedSyntax")
			}
			indented = &matched
		}
		so = in.Clone()

	default:
		return nil, errors.Errorf("unnormalized sassOptions %T", opts.SassOptions)
	}

	out := &compiler.Options{
		IndentedSyntax:    filepath.Ext(fc.SourceFileFullpath) == ".sass",
		SourceMapEmbed:    so.SourceMapEmbed,
		SourceMapContents: so.SourceMapContents,
		OmitSourceMapURL:  so.OmitSourceMapURL,
		OutputStyle:       so.OutputStyle,
		IncludePaths:      so.IncludePaths,
		Extra:             so.Extra,
	}
	if indented != nil {
		out.IndentedSyntax = *indented
	}

	switch sm := so.SourceMap.(type) {
	case SourceMapFlag:
		out.SourceMap = bool(sm)
	case SourceMapPath:
		out.SourceMap = true
		out.SourceMapPath = resolvePath(destBase, string(sm))
	}

	if importerSet(so.Importer) {
		importers, err := normalizeImporter(reg, so.Importer)
		if err != nil {
			return nil, err
		}
		out.Importers = importers
	}

	if so.Functions != nil {
		functions, err := normalizeFunctions(reg, so.Functions)
		if err != nil {
			return nil, err
		}
		out.Functions = functions.CustomFunctions()
	}

	out.File = fc.SourceFileFullpath
	out.OutFile = fc.DestinationFileFullpath
	out.Data = string(fc.File.Contents)

	return out, nil
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
