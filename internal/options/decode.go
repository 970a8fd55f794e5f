package options

import (
	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/loader"
)

// DecodeConfig converts a decoded data module into a Config.
func DecodeConfig(r *loader.Record) (*Config, error) {
	cfg := &Config{}
	if r == nil {
		return cfg, nil
	}

	if v, ok := r.Get("pattern"); ok {
		cfg.Pattern = decodePattern(v)
	}

	if v, ok := r.Get("sassOptions"); ok {
		switch t := v.(type) {
		case nil:
		case string:
			cfg.SassOptions = ModuleRef(t)
		case *loader.Record:
			o, err := DecodeSassOptions(t)
			if err != nil {
				return nil, err
			}
			cfg.SassOptions = o
		default:
			return nil, errors.Errorf("invalid sassOptions value of type %T", v)
		}
	}

	if v, ok := r.Get("renamer"); ok {
		cfg.Renamer = decodeRenamer(v)
	}

	if v, ok := r.Get("dependenciesKey"); ok && loader.Truthy(v) {
		key, isString := v.(string)
		if !isString {
			return nil, errors.Errorf("invalid dependenciesKey value of type %T", v)
		}
		cfg.DependenciesKey = key
	}

	return cfg, nil
}

func decodePattern(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	return nil
}

func decodeRenamer(v any) RenamerInput {
	if !loader.Truthy(v) {
		return RenameFlag(false)
	}
	if s, ok := v.(string); ok {
		return ModuleRef(s)
	}
	return RenameFlag(true)
}

func decodeStrings(key string, v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, errors.Errorf("invalid %s element of type %T", key, e)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, errors.Errorf("invalid %s value of type %T", key, v)
}

func decodeBool(key string, v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	}
	return false, errors.Errorf("invalid %s value of type %T", key, v)
}

// DecodeSassOptions converts a decoded record into SassOptions. Keys it does
// not know are kept in Extra.
func DecodeSassOptions(r *loader.Record) (*SassOptions, error) {
	o := &SassOptions{}
	var err error

	for _, key := range r.Keys() {
		v, _ := r.Get(key)
		switch key {
		case "indentedSyntax":
			switch t := v.(type) {
			case nil:
			case bool:
				o.IndentedSyntax = SyntaxFlag(t)
			default:
				var patterns []string
				patterns, err = decodeStrings(key, v)
				o.IndentedSyntax = SyntaxPattern(patterns)
			}
		case "sourceMap":
			switch t := v.(type) {
			case nil:
			case bool:
				o.SourceMap = SourceMapFlag(t)
			case string:
				o.SourceMap = SourceMapPath(t)
			default:
				err = errors.Errorf("invalid sourceMap value of type %T", v)
			}
		case "sourceMapEmbed":
			o.SourceMapEmbed, err = decodeBool(key, v)
		case "sourceMapContents":
			o.SourceMapContents, err = decodeBool(key, v)
		case "omitSourceMapUrl":
			o.OmitSourceMapURL, err = decodeBool(key, v)
		case "outputStyle":
			if v != nil {
				s, ok := v.(string)
				if !ok {
					err = errors.Errorf("invalid outputStyle value of type %T", v)
				}
				o.OutputStyle = s
			}
		case "includePaths":
			o.IncludePaths, err = decodeStrings(key, v)
		case "importer":
			o.Importer, err = decodeImporter(v)
		case "functions":
			o.Functions, err = decodeFunctions(v)
		default:
			if o.Extra == nil {
				o.Extra = map[string]any{}
			}
			o.Extra[key] = v
		}
		if err != nil {
			return nil, errors.WithMessage(err, "sassOptions")
		}
	}

	return o, nil
}

func decodeImporter(v any) (ImporterInput, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return ModuleRef(t), nil
	case *loader.Record:
		gens := make(ImporterGenerators, 0, t.Len())
		for _, module := range t.Keys() {
			args, _ := t.Get(module)
			gens = append(gens, Generator{Module: module, Args: args})
		}
		return gens, nil
	case []any:
		out := make(ImporterInputs, 0, len(t))
		for _, e := range t {
			in, err := decodeImporter(e)
			if err != nil {
				return nil, err
			}
			if in != nil {
				out = append(out, in)
			}
		}
		return out, nil
	}
	return nil, errors.Errorf("invalid importer value of type %T", v)
}

func decodeFunctions(v any) (Functions, error) {
	if v == nil {
		return nil, nil
	}
	r, ok := v.(*loader.Record)
	if !ok {
		return nil, errors.Errorf("invalid functions value of type %T", v)
	}

	out := make(Functions, 0, r.Len())
	for _, signature := range r.Keys() {
		value, _ := r.Get(signature)
		entry := FunctionEntry{Signature: signature}
		switch t := value.(type) {
		case string:
			entry.Value = ModuleRef(t)
		case *loader.Record:
			gen := FunctionGenerator{}
			for _, module := range t.Keys() {
				gen[module], _ = t.Get(module)
			}
			entry.Value = gen
		default:
			if loader.Truthy(value) {
				return nil, errors.Errorf("invalid functions value of type %T for %q", value, signature)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
