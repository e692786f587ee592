package kafka

import (
	"encoding/json"
	"fmt"
)

// MustJSON marshals a value that is known to be encodable; the event types
// here are plain structs, so a failure is a programming error.
func MustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func DecodeEnvelope(b []byte, out any) error {
	return json.Unmarshal(b, out)
}

// DecodePayload decodes the type-specific payload of an envelope.
func DecodePayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
