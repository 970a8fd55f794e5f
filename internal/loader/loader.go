// Package loader resolves module references used in plugin configuration.
//
// A module is either a Go value registered under a name, or a data file
// (.json, .yaml, .yml) resolved relative to the working directory and
// decoded into loader values (see Record).
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Generator builds an option value from the arguments given in configuration.
type Generator func(args any) (any, error)

// Filter validates a loaded value and converts it to T.
type Filter[T any] func(v any) (T, bool)

// Registry holds named module exports.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]any
	dir     string
}

// NewRegistry returns an empty registry resolving data files against the
// process working directory.
func NewRegistry() *Registry {
	return &Registry{modules: map[string]any{}}
}

// Default is the registry used by the package level helpers.
var Default = NewRegistry()

// Register adds a module to the default registry.
func Register(name string, value any) {
	Default.Register(name, value)
}

// Register adds or replaces the export of module name.
func (r *Registry) Register(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = value
}

// Unregister removes module name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, name)
}

// SetDir sets the directory data files are resolved against. An empty dir
// means the working directory.
func (r *Registry) SetDir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dir = dir
}

var dataExtensions = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
}

// Load returns the export of module name.
func (r *Registry) Load(name string) (any, error) {
	r.mu.RLock()
	v, ok := r.modules[name]
	dir := r.dir
	r.mu.RUnlock()
	if ok {
		return v, nil
	}

	if !dataExtensions[strings.ToLower(filepath.Ext(name))] {
		return nil, &NotFoundError{Module: name}
	}

	path := name
	if !filepath.IsAbs(path) {
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, errors.Wrap(err, "resolve working directory")
			}
			dir = wd
		}
		path = filepath.Join(dir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Module: name}
		}
		return nil, err
	}

	v, err = Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", name)
	}
	return v, nil
}

// LoadModule loads name, turning a failure into a LoadError whose message is
// built by template from the underlying error.
func (r *Registry) LoadModule(name string, template func(err error) string) (any, error) {
	v, err := r.Load(name)
	if err != nil {
		return nil, &LoadError{Module: name, Msg: template(err), Err: err}
	}
	return v, nil
}

// LoadOption loads name and validates its export with filter.
func LoadOption[T any](r *Registry, name, optionName string, filter Filter[T], returnTypeName string) (T, error) {
	var zero T

	v, err := r.LoadModule(name, func(err error) string {
		return fmt.Sprintf("Loading %s option failed: %s", optionName, err)
	})
	if err != nil {
		return zero, err
	}

	out, ok := filter(v)
	if !ok {
		return zero, &TypeError{
			Option: optionName,
			Module: name,
			Msg:    fmt.Sprintf("Invalid %s option. Module does not export %s: '%s'", optionName, returnTypeName, name),
		}
	}
	return out, nil
}

// LoadOptionGenerator loads name, which must export a generator, calls it
// with args and validates the generated value with filter.
func LoadOptionGenerator[T any](r *Registry, name string, args any, optionName string, filter Filter[T], returnTypeName string) (T, error) {
	var zero T

	v, err := r.LoadModule(name, func(err error) string {
		return fmt.Sprintf("Loading %s option generator failed: %s", optionName, err)
	})
	if err != nil {
		return zero, err
	}

	gen, ok := AsGenerator(v)
	if !ok {
		return zero, &TypeError{
			Option: optionName,
			Module: name,
			Msg:    fmt.Sprintf("Loading %s option generator failed. Module does not export function: '%s'", optionName, name),
		}
	}

	generated, err := gen(args)
	if err != nil {
		return zero, errors.WithMessagef(err, "%s option generator '%s'", optionName, name)
	}

	out, ok := filter(generated)
	if !ok {
		return zero, &TypeError{
			Option: optionName,
			Module: name,
			Msg:    fmt.Sprintf("Invalid %s option. The function exported by this module does not return %s: '%s'", optionName, returnTypeName, name),
		}
	}
	return out, nil
}

// AsGenerator accepts the function shapes a generator module may export.
func AsGenerator(v any) (Generator, bool) {
	switch fn := v.(type) {
	case Generator:
		return fn, fn != nil
	case func(any) (any, error):
		return fn, fn != nil
	case func(any) any:
		if fn == nil {
			return nil, false
		}
		return func(args any) (any, error) { return fn(args), nil }, true
	}
	return nil, false
}
