package deck

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/lox/dealproof/internal/fault"
)

// Reconstruct replays the dealer's shuffle from the committed entropy and the
// revealed time seed. It must match the dealer bit for bit.
//
// The entropy bytes are first permuted with a seeded index swap (index i, from
// the last down to 1, swaps with swapKey(seed, i) mod (i+1)). The sorted deck
// is then Fisher-Yates shuffled front to back, consuming one permuted byte per
// step (cycling when the entropy is shorter than the deck) modulo the number
// of cards still unplaced.
//
// A nil seed or empty entropy returns fault.ErrUnavailable.
func Reconstruct(raw []byte, timeSeed *uint64) ([Size]Card, error) {
	if len(raw) == 0 || timeSeed == nil {
		return [Size]Card{}, fault.ErrUnavailable
	}

	entropy := PermuteEntropy(raw, *timeSeed)

	cards := Sorted()
	for i := 0; i < Size-1; i++ {
		remaining := Size - i
		b := entropy[i%len(entropy)]
		j := i + int(b)%remaining
		cards[i], cards[j] = cards[j], cards[i]
	}
	return cards, nil
}

// PermuteEntropy returns a copy of raw reordered by the seed-keyed swap.
func PermuteEntropy(raw []byte, seed uint64) []byte {
	out := make([]byte, len(raw))
	copy(out, raw)
	for i := len(out) - 1; i > 0; i-- {
		j := int(swapKey(seed, uint32(i)) % uint64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// swapKey is the first 8 bytes (little-endian) of SHA-256(seed LE8 || i LE4).
func swapKey(seed uint64, i uint32) uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], seed)
	binary.LittleEndian.PutUint32(buf[8:], i)
	sum := sha256.Sum256(buf[:])
	return binary.LittleEndian.Uint64(sum[:8])
}
