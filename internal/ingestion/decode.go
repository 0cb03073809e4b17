package ingestion

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decode strips a leading BOM and decodes raw bytes into valid UTF-8,
// replacing invalid sequences, per spec.md §4.4's decoding rule.
func decode(raw []byte) string {
	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		return toValidUTF8(raw[len(bomUTF8):])
	case bytes.HasPrefix(raw, bomUTF16LE):
		return decodeUTF16(raw, unicode.LittleEndian)
	case bytes.HasPrefix(raw, bomUTF16BE):
		return decodeUTF16(raw, unicode.BigEndian)
	default:
		return toValidUTF8(raw)
	}
}

func decodeUTF16(raw []byte, order unicode.Endianness) string {
	decoder := unicode.UTF16(order, unicode.ExpectBOM).NewDecoder()
	out, err := decoder.Bytes(raw)
	if err != nil {
		return toValidUTF8(raw)
	}
	return toValidUTF8(out)
}

// toValidUTF8 rewrites each invalid UTF-8 byte to one Unicode replacement
// character (unlike strings.ToValidUTF8, which collapses a run of invalid
// bytes into one), without allocating when the input is already clean.
func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var buf bytes.Buffer
	buf.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			buf.WriteRune(utf8.RuneError)
			b = b[1:]
			continue
		}
		buf.Write(b[:size])
		b = b[size:]
	}
	return buf.String()
}
