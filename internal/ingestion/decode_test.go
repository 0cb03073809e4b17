package ingestion

import (
	"strings"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

func TestDecode_PlainUTF8(t *testing.T) {
	got := decode([]byte("hello world"))
	if got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestDecode_UTF8BOMStripped(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello")...)
	if got := decode(raw); got != "hello" {
		t.Errorf("expected BOM stripped, got %q", got)
	}
}

func TestDecode_UTF16LE(t *testing.T) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	raw, err := encoder.Bytes([]byte("hello"))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if got := decode(raw); got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestDecode_UTF16BE(t *testing.T) {
	encoder := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	raw, err := encoder.Bytes([]byte("hello"))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if got := decode(raw); got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestDecode_InvalidUTF8Replaced(t *testing.T) {
	raw := []byte{'a', 0xFF, 'b'}
	got := decode(raw)
	if !strings.Contains(got, "�") {
		t.Errorf("expected replacement character in %q", got)
	}
	if !strings.HasPrefix(got, "a") || !strings.HasSuffix(got, "b") {
		t.Errorf("expected valid bytes preserved around the invalid one, got %q", got)
	}
}

func TestToValidUTF8_AlreadyValidIsUnchanged(t *testing.T) {
	if got := toValidUTF8([]byte("clean ascii")); got != "clean ascii" {
		t.Errorf("got %q", got)
	}
}
