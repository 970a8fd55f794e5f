// Package compiler defines the port between the sass plugin and a
// style-sheet compiler implementation.
package compiler

import (
	"context"
	"path/filepath"
)

// Output styles understood by the adapters.
const (
	OutputStyleExpanded   = "expanded"
	OutputStyleCompressed = "compressed"
)

// Import is what an importer resolved a URL to: either a file on disk or
// inline contents.
type Import struct {
	File     string
	Contents string
	// IndentedSyntax marks inline contents written in the indented syntax.
	IndentedSyntax bool
}

// Importer resolves an @import URL seen in prev. Returning nil, nil lets the
// next importer try.
type Importer func(url, prev string) (*Import, error)

// Function implements a custom Sass function. Arguments and the result are
// Sass values in their CSS text form.
type Function func(ctx context.Context, args []string) (string, error)

// CustomFunction binds a Function to its Sass signature, e.g. "sqrt($n)".
type CustomFunction struct {
	Signature string
	Func      Function
}

// Options is the concrete per-file configuration handed to a Compiler.
type Options struct {
	// File is the absolute source path, Data its contents.
	File string
	Data string
	// OutFile is the absolute destination of the compiled CSS.
	OutFile string

	IndentedSyntax bool

	// SourceMap requests a source map. SourceMapPath, when set, is its
	// absolute destination and implies SourceMap.
	SourceMap         bool
	SourceMapPath     string
	SourceMapEmbed    bool
	SourceMapContents bool
	OmitSourceMapURL  bool

	OutputStyle  string
	IncludePaths []string

	Importers []Importer
	Functions []CustomFunction

	// Extra holds pass-through compiler flags.
	Extra map[string]any
}

// WantsSourceMap reports whether a map was requested.
func (o *Options) WantsSourceMap() bool {
	return o.SourceMap || o.SourceMapPath != "" || o.SourceMapEmbed
}

// MapFile returns the absolute path the source map is written to.
func (o *Options) MapFile() string {
	if o.SourceMapPath != "" {
		return o.SourceMapPath
	}
	return o.OutFile + ".map"
}

// MappingURL returns the sourceMappingURL value: the map path relative to
// the directory of OutFile.
func (o *Options) MappingURL() string {
	rel, err := filepath.Rel(filepath.Dir(o.OutFile), o.MapFile())
	if err != nil {
		return filepath.ToSlash(o.MapFile())
	}
	return filepath.ToSlash(rel)
}

// Result is the outcome of one compilation.
type Result struct {
	CSS []byte
	// Map is the source map JSON, nil when none was produced.
	Map []byte
	// IncludedFiles lists the absolute paths of every file pulled in while
	// compiling, the entry file excluded.
	IncludedFiles []string
}

// Compiler turns Sass sources into CSS.
type Compiler interface {
	Compile(ctx context.Context, opts *Options) (*Result, error)
}

// Func adapts a function to the Compiler interface.
type Func func(ctx context.Context, opts *Options) (*Result, error)

// Compile calls f.
func (f Func) Compile(ctx context.Context, opts *Options) (*Result, error) {
	return f(ctx, opts)
}
