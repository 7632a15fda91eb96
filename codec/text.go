package codec

import (
	"encoding/json"

	"github.com/c360/docstore/errors"
)

// TextCodec stores values as plain JSON so the backend's own tooling can read them.
type TextCodec struct{}

// NewTextCodec returns the pure-text codec.
func NewTextCodec() *TextCodec {
	return &TextCodec{}
}

// Format returns FormatText.
func (c *TextCodec) Format() Format { return FormatText }

// Encode marshals v. Only JSON objects and arrays are accepted; anything else could not
// be told apart from a binary payload on read.
func (c *TextCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapInvalid(err, "TextCodec", "Encode", "json marshal")
	}
	if len(data) == 0 || (data[0] != '{' && data[0] != '[') {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "TextCodec", "Encode",
			"text documents must encode to a JSON object or array")
	}
	return data, nil
}

// Decode unmarshals data directly.
func (c *TextCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.MalformedPayload("json decode: %v", err)
	}
	return nil
}
