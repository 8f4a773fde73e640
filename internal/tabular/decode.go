package tabular

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var ErrUndecodable = errors.New("text could not be decoded")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts spreadsheet exports to UTF-8. UTF-8 is tried first, then
// ISO-8859-1. Since every byte is valid Latin-1, Windows-1252 is used
// instead whenever the Latin-1 reading produces C1 control characters,
// which in practice means the file came from a Windows code page.
func Decode(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}

	latin1, err := decodeWith(charmap.ISO8859_1, data)
	if err != nil {
		return "", "", err
	}
	if !hasC1Controls(latin1) {
		return latin1, "iso-8859-1", nil
	}

	cp1252, err := decodeWith(charmap.Windows1252, data)
	if err != nil {
		return latin1, "iso-8859-1", nil
	}
	return cp1252, "windows-1252", nil
}

func decodeWith(enc encoding.Encoding, data []byte) (string, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return string(out), nil
}

func hasC1Controls(s string) bool {
	for _, r := range s {
		if r >= 0x80 && r <= 0x9F {
			return true
		}
	}
	return false
}
