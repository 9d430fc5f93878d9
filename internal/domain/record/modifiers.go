package record

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SetField returns a Modifier that sets the value at a gjson/sjson dot path.
// Setting a field to the value it already holds is a NoChange.
func SetField(path string, value json.RawMessage) Modifier {
	return func(current json.RawMessage) (Mutation, error) {
		if path == "" {
			return nil, fmt.Errorf("%w: empty field path", ErrInvalidInput)
		}
		if !json.Valid(value) {
			return nil, fmt.Errorf("%w: value for %q is not valid JSON", ErrInvalidInput, path)
		}
		doc := objectOrEmpty(current)
		if existing := gjson.GetBytes(doc, path); existing.Exists() && jsonEqual([]byte(existing.Raw), value) {
			return NoChange{}, nil
		}
		updated, err := sjson.SetRawBytes(doc, path, value)
		if err != nil {
			return nil, fmt.Errorf("%w: setting %q: %v", ErrInvalidInput, path, err)
		}
		return Apply{Payload: updated}, nil
	}
}

// DeleteField returns a Modifier that removes the value at path. Removing a
// field that is not present is a NoChange.
func DeleteField(path string) Modifier {
	return func(current json.RawMessage) (Mutation, error) {
		if path == "" {
			return nil, fmt.Errorf("%w: empty field path", ErrInvalidInput)
		}
		doc := objectOrEmpty(current)
		if !gjson.GetBytes(doc, path).Exists() {
			return NoChange{}, nil
		}
		updated, err := sjson.DeleteBytes(doc, path)
		if err != nil {
			return nil, fmt.Errorf("%w: deleting %q: %v", ErrInvalidInput, path, err)
		}
		return Apply{Payload: updated}, nil
	}
}

// Replace returns a Modifier that swaps the whole payload.
func Replace(payload json.RawMessage) Modifier {
	return func(current json.RawMessage) (Mutation, error) {
		if jsonEqual(current, payload) {
			return NoChange{}, nil
		}
		return Apply{Payload: payload}, nil
	}
}

func objectOrEmpty(doc json.RawMessage) []byte {
	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		return []byte(`{}`)
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out
}

func jsonEqual(a, b []byte) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
