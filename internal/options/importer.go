package options

import (
	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/compiler"
	"github.com/toastate/sasspipe/internal/loader"
)

// ImporterInput is a ModuleRef, an Importer, an ImporterList, an
// ImporterInputs or an ImporterGenerators.
type ImporterInput interface{ isImporterInput() }

// Importer is a single import hook.
type Importer func(url, prev string) (*compiler.Import, error)

func (Importer) isImporterInput() {}

// ImporterList is an ordered list of hooks. It is also the normalized form.
type ImporterList []compiler.Importer

func (ImporterList) isImporterInput() {}

// ImporterInputs mixes shapes; each element is normalized and the results
// are flattened one level.
type ImporterInputs []ImporterInput

func (ImporterInputs) isImporterInput() {}

// Generator names a generator module and the arguments it is called with.
type Generator struct {
	Module string
	Args   any
}

// ImporterGenerators builds importers by calling generator modules, in order.
type ImporterGenerators []Generator

func (ImporterGenerators) isImporterInput() {}

// asImporters accepts a single hook or a flat list of hooks.
func asImporters(v any) ([]compiler.Importer, bool) {
	switch t := v.(type) {
	case compiler.Importer:
		return []compiler.Importer{t}, t != nil
	case Importer:
		return []compiler.Importer{compiler.Importer(t)}, t != nil
	case func(string, string) (*compiler.Import, error):
		return []compiler.Importer{t}, t != nil
	case ImporterList:
		return asImporters([]compiler.Importer(t))
	case []compiler.Importer:
		for _, imp := range t {
			if imp == nil {
				return nil, false
			}
		}
		return append([]compiler.Importer{}, t...), true
	case []Importer:
		out := make([]compiler.Importer, 0, len(t))
		for _, imp := range t {
			if imp == nil {
				return nil, false
			}
			out = append(out, compiler.Importer(imp))
		}
		return out, true
	case []any:
		out := make([]compiler.Importer, 0, len(t))
		for _, e := range t {
			single, ok := asImporters(e)
			if !ok || len(single) != 1 || isList(e) {
				return nil, false
			}
			out = append(out, single[0])
		}
		return out, true
	}
	return nil, false
}

func isList(v any) bool {
	switch v.(type) {
	case ImporterList, []compiler.Importer, []Importer, []any:
		return true
	}
	return false
}

func importerSet(in ImporterInput) bool {
	switch t := in.(type) {
	case nil:
		return false
	case ModuleRef:
		return t != ""
	case Importer:
		return t != nil
	}
	return true
}

// normalizeImporter resolves in to a flat, ordered list of hooks.
func normalizeImporter(reg *loader.Registry, in ImporterInput) (ImporterList, error) {
	switch t := in.(type) {
	case ModuleRef:
		return loader.LoadOption(reg, string(t), "importer", asImporters, "valid importer")
	case Importer:
		return ImporterList{compiler.Importer(t)}, nil
	case ImporterList:
		for _, imp := range t {
			if imp == nil {
				return nil, loader.NewTypeError("importer", "Invalid importer option. The importer list contains a value that is not a valid importer")
			}
		}
		return t, nil
	case ImporterInputs:
		var out ImporterList
		for _, e := range t {
			if !importerSet(e) {
				continue
			}
			list, err := normalizeImporter(reg, e)
			if err != nil {
				return nil, err
			}
			out = append(out, list...)
		}
		return out, nil
	case ImporterGenerators:
		var out ImporterList
		for _, g := range t {
			list, err := loader.LoadOptionGenerator(reg, g.Module, g.Args, "importer", asImporters, "valid importer")
			if err != nil {
				return nil, err
			}
			out = append(out, list...)
		}
		return out, nil
	}
	return nil, errors.Errorf("unsupported importer input %T", in)
}
