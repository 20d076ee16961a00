package state

import (
	"encoding/json"
	"fmt"
)

// decodeValue decodes raw into a T, returning def when raw does not have T's shape.
func decodeValue[T any](raw string, def T) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return def, err
	}
	return v, nil
}

// decodeList decodes a JSON array element by element. Elements that do not decode into T,
// or that keep fails, are dropped; a value that is not an array yields an error.
func decodeList[T any](raw string, keep func(T) bool) ([]T, int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return []T{}, 0, err
	}

	out := make([]T, 0, len(items))
	dropped := 0
	for _, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			dropped++
			continue
		}
		if keep != nil && !keep(v) {
			dropped++
			continue
		}
		out = append(out, v)
	}
	return out, dropped, nil
}

func encode(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode: %w", err)
	}
	return string(raw), nil
}
