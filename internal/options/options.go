// Package options turns the flexible plugin configuration into the concrete
// values the sass plugin runs with.
//
// Every configuration field accepts several authoring shapes. Each shape is an
// arm of a small closed interface (Input, RenamerInput, SassOptionsInput,
// ImporterInput, FunctionInput); ModuleRef implements all of them and is
// resolved through a loader.Registry.
package options

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/loader"
	"github.com/toastate/sasspipe/internal/pipeline"
	"github.com/toastate/sasspipe/internal/store"
)

// ModuleRef names a module registered in a loader.Registry, or a data file
// (.json, .yaml, .yml) relative to the working directory.
type ModuleRef string

func (ModuleRef) isInput()            {}
func (ModuleRef) isRenamerInput()     {}
func (ModuleRef) isSassOptionsInput() {}
func (ModuleRef) isImporterInput()    {}
func (ModuleRef) isFunctionInput()    {}

// Input is the whole plugin configuration: a ModuleRef, a *Config or a
// Factory.
type Input interface{ isInput() }

// Factory builds the configuration from the current file set. defaults is a
// private copy the factory may modify.
type Factory func(ctx context.Context, files *store.Store, p pipeline.Context, defaults *Config) (*Config, error)

func (Factory) isInput() {}

// Config is the authoring form of the plugin configuration.
type Config struct {
	// Pattern selects the files to compile. A nil slice means the default.
	Pattern []string
	// SassOptions is a ModuleRef, a *SassOptions or a SassOptionsFunc.
	SassOptions SassOptionsInput
	// Renamer is a ModuleRef, a Renamer or a RenameFlag. nil means the
	// default renamer.
	Renamer RenamerInput
	// DependenciesKey names the metadata key dependency records are stored
	// under. Empty disables them.
	DependenciesKey string
}

func (*Config) isInput() {}

// RenamerInput is a ModuleRef, a Renamer or a RenameFlag.
type RenamerInput interface{ isRenamerInput() }

// Renamer maps a source filename to its destination filename.
type Renamer func(ctx context.Context, filename string) (string, error)

func (Renamer) isRenamerInput() {}

// RenameFlag selects the default renamer (true) or no renaming (false).
type RenameFlag bool

func (RenameFlag) isRenamerInput() {}

// PluginOptions is the normalized configuration.
type PluginOptions struct {
	Pattern []string
	// SassOptions is either a *SassOptions or a SassOptionsFunc.
	SassOptions     SassOptionsInput
	Renamer         Renamer
	DependenciesKey string
}

// DefaultPattern selects Sass sources and leaves partials out.
func DefaultPattern() []string {
	return []string{"**/*.sass", "**/*.scss", "!**/_*"}
}

// DefaultRenamer replaces the extension of filename with .css.
func DefaultRenamer(_ context.Context, filename string) (string, error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base)) + ".css"
	return filepath.Join(filepath.Dir(filename), base), nil
}

// IdentityRenamer keeps filename.
func IdentityRenamer(_ context.Context, filename string) (string, error) {
	return filename, nil
}

// DefaultOptions returns a new copy of the defaults on every call.
func DefaultOptions() *Config {
	return &Config{
		Pattern:     DefaultPattern(),
		SassOptions: &SassOptions{},
		Renamer:     Renamer(DefaultRenamer),
	}
}

// Normalize resolves input against reg into the concrete plugin options.
// A nil reg means loader.Default.
func Normalize(ctx context.Context, reg *loader.Registry, files *store.Store, p pipeline.Context, input Input) (*PluginOptions, error) {
	if reg == nil {
		reg = loader.Default
	}

	cfg, err := resolveInput(ctx, reg, files, p, input)
	if err != nil {
		return nil, err
	}

	renamer, err := normalizeRenamer(reg, cfg.Renamer)
	if err != nil {
		return nil, err
	}

	sassOptions, err := normalizeSassOptions(reg, cfg.SassOptions)
	if err != nil {
		return nil, err
	}

	return &PluginOptions{
		Pattern:         normalizePattern(cfg.Pattern),
		SassOptions:     sassOptions,
		Renamer:         renamer,
		DependenciesKey: cfg.DependenciesKey,
	}, nil
}

func resolveInput(ctx context.Context, reg *loader.Registry, files *store.Store, p pipeline.Context, input Input) (*Config, error) {
	if ref, ok := input.(ModuleRef); ok {
		v, err := reg.LoadModule(string(ref), func(err error) string {
			return fmt.Sprintf("Loading options failed: %s", err)
		})
		if err != nil {
			return nil, err
		}

		switch t := v.(type) {
		case Config:
			input = &t
		case *Config:
			input = t
		case *loader.Record:
			cfg, err := DecodeConfig(t)
			if err != nil {
				return nil, errors.WithMessagef(err, "options module '%s'", ref)
			}
			input = cfg
		case Factory:
			input = t
		case func(context.Context, *store.Store, pipeline.Context, *Config) (*Config, error):
			input = Factory(t)
		default:
			return nil, &loader.TypeError{
				Option: "options",
				Module: string(ref),
				Msg:    fmt.Sprintf("Invalid options. Module does not export object or function: '%s'", ref),
			}
		}
	}

	switch t := input.(type) {
	case nil:
		return &Config{}, nil
	case *Config:
		if t == nil {
			return &Config{}, nil
		}
		return t, nil
	case Factory:
		if t == nil {
			return &Config{}, nil
		}
		cfg, err := t(ctx, files, p, DefaultOptions())
		if err != nil {
			return nil, errors.WithMessage(err, "options factory")
		}
		if cfg == nil {
			cfg = &Config{}
		}
		return cfg, nil
	}

	return nil, errors.Errorf("unsupported options input %T", input)
}

func normalizePattern(pattern []string) []string {
	if pattern == nil {
		return DefaultPattern()
	}
	return append([]string{}, pattern...)
}

func asRenamer(v any) (Renamer, bool) {
	switch fn := v.(type) {
	case Renamer:
		return fn, fn != nil
	case func(context.Context, string) (string, error):
		return fn, fn != nil
	case func(string) (string, error):
		if fn == nil {
			return nil, false
		}
		return func(_ context.Context, s string) (string, error) { return fn(s) }, true
	case func(string) string:
		if fn == nil {
			return nil, false
		}
		return func(_ context.Context, s string) (string, error) { return fn(s), nil }, true
	}
	return nil, false
}

func normalizeRenamer(reg *loader.Registry, input RenamerInput) (Renamer, error) {
	switch t := input.(type) {
	case nil:
		return DefaultRenamer, nil
	case Renamer:
		if t == nil {
			return IdentityRenamer, nil
		}
		return t, nil
	case RenameFlag:
		if t {
			return DefaultRenamer, nil
		}
		return IdentityRenamer, nil
	case ModuleRef:
		if t == "" {
			return IdentityRenamer, nil
		}
		v, err := reg.LoadModule(string(t), func(err error) string {
			return fmt.Sprintf("Loading renamer failed: %s", err)
		})
		if err != nil {
			return nil, err
		}
		if fn, ok := asRenamer(v); ok {
			return fn, nil
		}
		if loader.Truthy(v) {
			return DefaultRenamer, nil
		}
		return IdentityRenamer, nil
	}
	return nil, errors.Errorf("unsupported renamer input %T", input)
}
