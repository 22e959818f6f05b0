package types

import (
	"bytes"
	"encoding/json"
)

// OptionalString is a JSON string field that distinguishes three states:
// absent from the document, explicit null, and a concrete value. Plain
// *string cannot tell the first two apart, which matters for PATCH bodies
// where null means "clear this field".
type OptionalString struct {
	Present bool    // key appeared in the JSON document
	Value   *string // nil when the key was null
}

var jsonNull = []byte("null")

// UnmarshalJSON is only invoked for keys present in the document, so Present
// is always true here; absent keys leave the zero value.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Present = true
	if bytes.Equal(data, jsonNull) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// MarshalJSON round-trips the value; an unset field encodes as null.
func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return jsonNull, nil
	}
	return json.Marshal(*o.Value)
}
