// Package sass is the public API of the sass pipeline stage.
//
//	p := pipeline.New(".")
//	p.Use(sass.New(&sass.Config{
//		SassOptions: &sass.SassOptions{OutputStyle: "compressed"},
//	}))
package sass

import (
	"github.com/toastate/sasspipe/internal/compiler"
	"github.com/toastate/sasspipe/internal/compiler/dartsass"
	"github.com/toastate/sasspipe/internal/loader"
	"github.com/toastate/sasspipe/internal/options"
	"github.com/toastate/sasspipe/internal/pipeline"
	"github.com/toastate/sasspipe/internal/sassplugin"
)

type (
	Plugin       = sassplugin.Plugin
	Option       = sassplugin.Option
	Dependencies = sassplugin.Dependencies

	Input             = options.Input
	Config            = options.Config
	Factory           = options.Factory
	ModuleRef         = options.ModuleRef
	Renamer           = options.Renamer
	RenameFlag        = options.RenameFlag
	SassOptions       = options.SassOptions
	SassOptionsFunc   = options.SassOptionsFunc
	FileContext       = options.FileContext
	SyntaxFlag        = options.SyntaxFlag
	SyntaxPattern     = options.SyntaxPattern
	SourceMapFlag     = options.SourceMapFlag
	SourceMapPath     = options.SourceMapPath
	Importer          = options.Importer
	ImporterInputs    = options.ImporterInputs
	Generator         = options.Generator
	Function          = options.Function
	FunctionGenerator = options.FunctionGenerator
	FunctionEntry     = options.FunctionEntry
	Functions         = options.Functions

	Import   = compiler.Import
	Compiler = compiler.Compiler

	Registry = loader.Registry

	Pipeline = pipeline.Pipeline
)

var (
	ErrSourceMapOutsideDestination = sassplugin.ErrSourceMapOutsideDestination
	ErrDuplicateSourceMap          = sassplugin.ErrDuplicateSourceMap
	ErrDestinationCollision        = sassplugin.ErrDestinationCollision
	ErrFunctionsUnsupported        = dartsass.ErrFunctionsUnsupported
)

// New returns the sass plugin for input. A nil input compiles with the
// defaults.
func New(input Input, opts ...Option) *Plugin {
	return sassplugin.New(input, opts...)
}

// WithCompiler replaces the default Dart Sass compiler.
func WithCompiler(c Compiler) Option { return sassplugin.WithCompiler(c) }

// WithRegistry resolves module references in reg.
func WithRegistry(reg *Registry) Option { return sassplugin.WithRegistry(reg) }

// Register exports value as module name for ModuleRef lookups.
func Register(name string, value any) { loader.Register(name, value) }

// DefaultOptions returns a fresh copy of the default configuration.
func DefaultOptions() *Config { return options.DefaultOptions() }

// NewPipeline returns a pipeline rooted at root.
func NewPipeline(root string) *Pipeline { return pipeline.New(root) }
