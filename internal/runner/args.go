package runner

import (
	"bytes"
	"encoding/json"
	"fmt"

	"axon/internal/approval"
)

// parseArguments decodes a tool call's JSON arguments, preserving the key
// order the model emitted so prompts render parameters in a stable, natural
// sequence. An empty argument string decodes to no parameters.
func parseArguments(raw string) ([]approval.Param, map[string]any, error) {
	if raw == "" {
		return nil, map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("decode arguments: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("decode arguments: expected object, got %v", tok)
	}

	var params []approval.Param
	values := make(map[string]any)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("decode arguments: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("decode arguments: non-string key %v", keyTok)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("decode arguments: %w", err)
		}
		value = normalizeNumbers(value)

		params = append(params, approval.Param{Key: key, Value: value})
		values[key] = value
	}

	return params, values, nil
}

// normalizeNumbers converts json.Number values back to float64 recursively so
// downstream consumers see the ordinary encoding/json representation.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, inner := range t {
			t[k] = normalizeNumbers(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalizeNumbers(inner)
		}
		return t
	}
	return v
}
