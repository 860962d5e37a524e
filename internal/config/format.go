package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// toJSON returns the config file as JSON so both formats go through the
// strict decoder. .json files pass through; .yaml/.yml are converted; any
// other name is treated as JSON when it starts with '{' and YAML otherwise.
func toJSON(path string, data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return data, nil
	case ".yaml", ".yml":
	default:
		if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '{' {
			return data, nil
		}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty config", path)
		}
		return nil, fmt.Errorf("%s: yaml: %w", path, err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: expected a single yaml document", path)
	}
	out, err := json.Marshal(stringKeys(v))
	if err != nil {
		return nil, fmt.Errorf("%s: yaml to json: %w", path, err)
	}
	return out, nil
}

// stringKeys rewrites map[any]any (YAML allows non-string keys) into
// map[string]any, recursively.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = stringKeys(val)
		}
		return m
	case map[string]any:
		for k, val := range x {
			x[k] = stringKeys(val)
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = stringKeys(val)
		}
		return x
	}
	return v
}
