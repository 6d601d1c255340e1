package remote

import (
	"bytes"
	"fmt"
	"reflect"

	json "github.com/goccy/go-json"
)

func encode(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache value: %w", err)
	}
	return raw, nil
}

// decodeInto decodes raw into a fresh value of target's type and only
// assigns it on success, so a failed decode leaves target untouched.
// Unknown fields are rejected so that a different struct type reads as a
// mismatch rather than a partially filled value.
func decodeInto(raw []byte, target reflect.Value) error {
	fresh := reflect.New(target.Type())

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(fresh.Interface()); err != nil {
		return err
	}

	target.Set(fresh.Elem())
	return nil
}
