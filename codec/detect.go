package codec

import (
	"fmt"

	"github.com/c360/docstore/errors"
)

var (
	binaryCodec = NewBinaryCodec()
	textCodec   = NewTextCodec()
)

// Detect picks the codec that produced data from its first significant byte.
// ok is false for an empty payload, which callers treat as an absent document.
// Leading JSON whitespace is skipped; '{' or '[' selects Text, anything else Binary.
func Detect(data []byte) (c Codec, ok bool) {
	if len(data) == 0 {
		return nil, false
	}
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return textCodec, true
		}
		return binaryCodec, true
	}
	return binaryCodec, true
}

// ForFormat returns the codec for f.
func ForFormat(f Format) (Codec, error) {
	switch f {
	case FormatBinary:
		return binaryCodec, nil
	case FormatText:
		return textCodec, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "codec", "ForFormat",
			fmt.Sprintf("no codec for %s", f))
	}
}
