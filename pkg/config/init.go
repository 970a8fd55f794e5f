package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/loader"
	"github.com/toastate/sasspipe/internal/options"
	"gopkg.in/yaml.v3"
)

// DefaultFiles are tried in order when no configuration path is given.
var DefaultFiles = []string{"sasspipe.yaml", "sasspipe.yml", "sasspipe.json"}

var Config = DefaultConfiguration()

func DefaultConfiguration() *Configuration {
	return &Configuration{
		SrcDir:   "src",
		BuildDir: "build",
		Clean:    true,
		ServeConfig: ServeConfiguration{
			Redirect404: "",
			Port:        8100,
			Debounce:    500 * time.Millisecond,
		},
	}
}

type Configuration struct {
	SrcDir      string             `yaml:"source_directory,omitempty"`
	BuildDir    string             `yaml:"build_directory,omitempty"`
	Clean       bool               `yaml:"clean"`
	Ignore      []string           `yaml:"ignore,omitempty"`
	Minify      bool               `yaml:"minify"`
	Sass        yaml.Node          `yaml:"sass,omitempty"`
	ServeConfig ServeConfiguration `yaml:"serve_config,omitempty"`
}

type ServeConfiguration struct {
	Redirect404 string        `yaml:"redirect_404"`
	Port        int           `yaml:"port"`
	Debounce    time.Duration `yaml:"debounce"`
}

// SassInput returns the sass plugin options: nil when unset, a module
// reference for a string, the decoded options for a mapping.
func (c *Configuration) SassInput() (options.Input, error) {
	if c.Sass.IsZero() {
		return nil, nil
	}
	v, err := loader.FromNode(&c.Sass)
	if err != nil {
		return nil, errors.Wrap(err, "sass")
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return options.ModuleRef(t), nil
	case *loader.Record:
		cfg, err := options.DecodeConfig(t)
		if err != nil {
			return nil, errors.Wrap(err, "sass")
		}
		return cfg, nil
	}
	return nil, errors.Errorf("sass: expected a module name or a mapping, got %T", v)
}

// Load decodes the file at configpath over the defaults. An empty path tries
// DefaultFiles; a missing default file is not an error.
func Load(configpath string) (*Configuration, error) {
	cfg := DefaultConfiguration()

	candidates := DefaultFiles
	if configpath != "" {
		candidates = []string{configpath}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) && configpath == "" {
				continue
			}
			return nil, errors.Wrapf(err, "could not access configuration file %s", path)
		}

		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrapf(err, "decode configuration file %s", path)
		}
		break
	}

	return cfg, nil
}

// Init loads the configuration into Config.
func Init(configpath string) error {
	cfg, err := Load(configpath)
	if err != nil {
		return err
	}
	Config = cfg
	return nil
}
