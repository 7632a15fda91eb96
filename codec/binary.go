package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/docstore/errors"
)

const (
	// HeaderSize is the length of the binary payload header.
	HeaderSize = 4

	// BinaryVersion is the highest header version this build reads and the one it writes.
	// Versions must stay below '\t' (0x09) so a binary payload can never start with a byte
	// the detector treats as JSON.
	BinaryVersion byte = 1

	binaryFormatID byte = 1
)

// BinaryCodec encodes values as [version][format-id][0][0] followed by MessagePack.
// Struct fields use their json tags so both codecs agree on field names.
type BinaryCodec struct{}

// NewBinaryCodec returns the binary-header codec.
func NewBinaryCodec() *BinaryCodec {
	return &BinaryCodec{}
}

// Format returns FormatBinary.
func (c *BinaryCodec) Format() Format { return FormatBinary }

// Encode writes the header then the MessagePack encoding of v into a single buffer.
func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64)
	buf.Write([]byte{BinaryVersion, binaryFormatID, 0, 0})

	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, errors.WrapInvalid(err, "BinaryCodec", "Encode", "msgpack encode")
	}
	return buf.Bytes(), nil
}

// Decode validates the header and decodes the body in place.
// Checks run in order: length, version, format id.
func (c *BinaryCodec) Decode(data []byte, v any) error {
	if len(data) < HeaderSize {
		return errors.MalformedPayload("binary payload has %d bytes, header needs %d", len(data), HeaderSize)
	}
	if data[0] > BinaryVersion {
		return &errors.UnsupportedVersionError{Version: data[0], Max: BinaryVersion}
	}
	if data[1] != binaryFormatID {
		return &errors.UnsupportedFormatError{Format: data[1], Want: binaryFormatID}
	}

	// Reader over the sub-slice; the body is never copied.
	dec := msgpack.NewDecoder(bytes.NewReader(data[HeaderSize:]))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(v); err != nil {
		return errors.MalformedPayload("msgpack decode: %v", err)
	}
	return nil
}
