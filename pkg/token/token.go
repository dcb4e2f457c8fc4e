// Package token implements the opaque 128-bit port tokens and their
// reversible text encoding used for ephemeral grant records.
package token

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/google/uuid"
)

// Token is a 128-bit unguessable identifier assigned to a serial port for
// the lifetime of one physical connection. The zero value is the nil
// sentinel and never identifies a real port.
type Token struct {
	High uint64
	Low  uint64
}

// Nil is the invalid sentinel token returned by Decode on malformed input.
var Nil = Token{}

const rawLen = 16 // two 64-bit words

// New returns a freshly generated random token.
func New() Token {
	id := uuid.New()

	return Token{
		High: binary.BigEndian.Uint64(id[:8]),
		Low:  binary.BigEndian.Uint64(id[8:]),
	}
}

// IsNil reports whether t is the invalid sentinel.
func (t Token) IsNil() bool {
	return t == Nil
}

// Encode serializes the high and low words big-endian and base64-encodes
// the result. The output is stable across platforms and restarts.
func Encode(t Token) string {
	var buf [rawLen]byte

	binary.BigEndian.PutUint64(buf[:8], t.High)
	binary.BigEndian.PutUint64(buf[8:], t.Low)

	return base64.StdEncoding.EncodeToString(buf[:])
}

// Decode reverses Encode. Input that fails to decode, or whose payload is
// not exactly two 64-bit words, yields the nil token; callers treat that
// as a guaranteed non-match rather than an error.
func Decode(s string) Token {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(buf) != rawLen {
		return Nil
	}

	return Token{
		High: binary.BigEndian.Uint64(buf[:8]),
		Low:  binary.BigEndian.Uint64(buf[8:]),
	}
}

// String returns the encoded form.
func (t Token) String() string {
	return Encode(t)
}

// MarshalText encodes the token for JSON payloads and map keys.
func (t Token) MarshalText() ([]byte, error) {
	return []byte(Encode(t)), nil
}

// UnmarshalText decodes the token, mapping malformed input to the nil
// sentinel without reporting an error.
func (t *Token) UnmarshalText(b []byte) error {
	*t = Decode(string(b))
	return nil
}
