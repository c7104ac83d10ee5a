// Package txid generates time-sortable transaction ids: a UUIDv7 rendered as
// 26 characters of Crockford base32, most significant bits first.
package txid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Length is the encoded id length.
const Length = 26

const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// RandSource supplies the random tail of an id. *math/rand/v2.Rand satisfies
// it.
type RandSource interface {
	Uint64() uint64
}

// Generator builds ids from a clock and a random source.
type Generator struct {
	rand RandSource
	now  func() time.Time
}

// NewGenerator returns a generator. A nil source uses crypto/rand and a nil
// clock uses time.Now.
func NewGenerator(src RandSource, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{rand: src, now: now}
}

// New returns a fresh id from crypto/rand and the wall clock.
func New() string {
	return NewGenerator(nil, nil).Generate()
}

// Generate returns the next id.
func (g *Generator) Generate() string {
	var u [16]byte
	binary.BigEndian.PutUint64(u[:8], uint64(g.now().UnixMilli())<<16)
	if g.rand != nil {
		binary.BigEndian.PutUint16(u[6:8], uint16(g.rand.Uint64()))
		binary.BigEndian.PutUint64(u[8:], g.rand.Uint64())
	} else if _, err := rand.Read(u[6:]); err != nil {
		panic("txid: crypto/rand failed: " + err.Error())
	}
	u[6] = u[6]&0x0f | 0x70 // version 7
	u[8] = u[8]&0x3f | 0x80 // RFC 4122 variant
	return encode(u)
}

func encode(u [16]byte) string {
	hi := binary.BigEndian.Uint64(u[:8])
	lo := binary.BigEndian.Uint64(u[8:])
	out := make([]byte, Length)
	for i := Length - 1; i >= 0; i-- {
		out[i] = alphabet[lo&0x1f]
		lo = lo>>5 | hi<<59
		hi >>= 5
	}
	return string(out)
}

func decode(id string) ([16]byte, error) {
	var u [16]byte
	if len(id) != Length {
		return u, fmt.Errorf("transaction id must be %d characters, got %d", Length, len(id))
	}
	if id[0] > '7' {
		return u, fmt.Errorf("transaction id first character must be 0-7, got %c", id[0])
	}
	var hi, lo uint64
	for i := 0; i < Length; i++ {
		v := strings.IndexByte(alphabet, id[i])
		if v < 0 {
			return u, fmt.Errorf("invalid character %c at position %d", id[i], i)
		}
		hi = hi<<5 | lo>>59
		lo = lo<<5 | uint64(v)
	}
	binary.BigEndian.PutUint64(u[:8], hi)
	binary.BigEndian.PutUint64(u[8:], lo)
	return u, nil
}

// Validate checks that id is a well-formed version 7 id.
func Validate(id string) error {
	u, err := decode(id)
	if err != nil {
		return err
	}
	if u[6]>>4 != 7 {
		return fmt.Errorf("transaction id has version %d, want 7", u[6]>>4)
	}
	return nil
}

// Timestamp returns the millisecond creation time embedded in id.
func Timestamp(id string) (time.Time, error) {
	u, err := decode(id)
	if err != nil {
		return time.Time{}, err
	}
	ms := binary.BigEndian.Uint64(u[:8]) >> 16
	return time.UnixMilli(int64(ms)).UTC(), nil
}
