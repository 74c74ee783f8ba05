package packet

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Charset converts client strings to and from UTF-8. The zero value and a
// nil *Charset are UTF-8.
type Charset struct {
	name string
	enc  encoding.Encoding // nil for UTF-8
}

// UTF8 is the default client charset.
var UTF8 = &Charset{name: "utf-8"}

// LookupCharset resolves a WHATWG encoding label such as "utf-8", "big5"
// or "shift_jis".
func LookupCharset(label string) (*Charset, error) {
	if label == "" {
		return UTF8, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", label, err)
	}
	name, _ := htmlindex.Name(enc)
	if enc == unicode.UTF8 {
		return &Charset{name: name}, nil
	}
	return &Charset{name: name, enc: enc}, nil
}

func (c *Charset) String() string {
	if c == nil || c.name == "" {
		return "utf-8"
	}
	return c.name
}

// decode converts raw client bytes to UTF-8. Pure ASCII passes through.
func (c *Charset) decode(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	if c == nil || c.enc == nil || isASCII(raw) {
		return string(raw)
	}
	decoded, err := c.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// encode converts a UTF-8 string to client bytes. Invalid runes fall back
// to the raw bytes.
func (c *Charset) encode(s string) []byte {
	if c == nil || c.enc == nil || isASCII([]byte(s)) || !utf8.ValidString(s) {
		return []byte(s)
	}
	encoded, err := c.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return encoded
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
