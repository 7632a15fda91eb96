// Package codec implements the two document wire formats and the detector that tells them apart.
//
// Binary payloads carry a 4-byte header, [version][format-id][reserved][reserved], followed by
// MessagePack. Text payloads are plain JSON with no header and must start with '{' or '['.
// Detect relies on binary versions staying below 0x09, so no header can begin with a byte that
// also opens (or precedes) a JSON container.
package codec
