package codec

import (
	"fmt"
	"strings"

	"github.com/c360/docstore/errors"
)

// Format identifies the wire format of a stored document.
type Format byte

const (
	// FormatBinary is a 4-byte header followed by MessagePack bytes.
	FormatBinary Format = 1
	// FormatText is plain JSON with no header.
	FormatText Format = 2
)

func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatText:
		return "text"
	default:
		return fmt.Sprintf("format(%d)", byte(f))
	}
}

// ParseFormat maps a configuration value to a Format.
// "binary"/"msgpack" and "text"/"json" are accepted, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binary", "msgpack":
		return FormatBinary, nil
	case "text", "json":
		return FormatText, nil
	default:
		return 0, errors.WrapInvalid(errors.ErrInvalidArgument, "codec", "ParseFormat",
			fmt.Sprintf("unknown format %q", s))
	}
}

// Codec is a paired encoder/decoder for one wire format.
type Codec interface {
	Format() Format
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}
