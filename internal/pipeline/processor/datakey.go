package processor

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrMalformedPayload is returned for note data that is not printable ASCII text.
var ErrMalformedPayload = errors.New("malformed note payload")

// DecodeDataKey turns the hex encoding of a note payload (optional 0x) into
// text. The bytes must be UTF-8 made only of printable ASCII (0x20..0x7E).
func DecodeDataKey(payload string) (string, error) {
	clean := strings.TrimPrefix(payload, "0x")
	if len(clean)%2 != 0 {
		return "", fmt.Errorf("%w: odd number of hex digits", ErrMalformedPayload)
	}
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return "", fmt.Errorf("%w: invalid hex digit", ErrMalformedPayload)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrMalformedPayload)
	}
	for _, b := range raw {
		if b < 0x20 || b > 0x7e {
			return "", fmt.Errorf("%w: non-printable character 0x%02x", ErrMalformedPayload, b)
		}
	}
	return string(raw), nil
}
