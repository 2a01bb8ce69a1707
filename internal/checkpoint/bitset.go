package checkpoint

import (
	"encoding/binary"
	"math/bits"
	"sync/atomic"
)

// Bitset is a fixed-size concurrent bit set. Bits are set with word-level
// compare-and-swap, so concurrent updates to different bits in the same
// word never lose writes.
type Bitset struct {
	words []uint64
	n     uint64
}

func NewBitset(n uint64) *Bitset {
	return &Bitset{words: make([]uint64, (n+63)/64), n: n}
}

// Len returns the number of addressable bits.
func (b *Bitset) Len() uint64 { return b.n }

// Set sets bit i and reports whether it was newly set. Out-of-range
// indices return false.
func (b *Bitset) Set(i uint64) bool {
	if i >= b.n {
		return false
	}
	word := &b.words[i/64]
	mask := uint64(1) << (i % 64)
	for {
		old := atomic.LoadUint64(word)
		if old&mask != 0 {
			return false
		}
		if atomic.CompareAndSwapUint64(word, old, old|mask) {
			return true
		}
	}
}

// Get reports bit i. Out-of-range indices read as false.
func (b *Bitset) Get(i uint64) bool {
	if i >= b.n {
		return false
	}
	return atomic.LoadUint64(&b.words[i/64])&(uint64(1)<<(i%64)) != 0
}

// Count returns the number of set bits.
func (b *Bitset) Count() uint64 {
	var total uint64
	for i := range b.words {
		total += uint64(bits.OnesCount64(atomic.LoadUint64(&b.words[i])))
	}
	return total
}

// Full reports whether every bit is set.
func (b *Bitset) Full() bool {
	return b.Count() == b.n
}

// Bytes snapshots the set into its on-disk form: ⌈n/8⌉ bytes, bit i of
// the stream = bit i of the set.
func (b *Bitset) Bytes() []byte {
	out := make([]byte, (b.n+7)/8)
	var word [8]byte
	for i := range b.words {
		binary.LittleEndian.PutUint64(word[:], atomic.LoadUint64(&b.words[i]))
		copy(out[i*8:], word[:])
	}
	return out
}

// bitsetFromBytes rebuilds a Bitset of n bits from its on-disk form.
func bitsetFromBytes(data []byte, n uint64) *Bitset {
	b := NewBitset(n)
	for i := range b.words {
		var word [8]byte
		copy(word[:], paddedSlice(data, i*8))
		b.words[i] = binary.LittleEndian.Uint64(word[:])
	}
	return b
}

// paddedSlice returns up to 8 bytes of data starting at off, zero-padded
// past the end.
func paddedSlice(data []byte, off int) []byte {
	if off >= len(data) {
		return nil
	}
	end := off + 8
	if end > len(data) {
		end = len(data)
	}
	return data[off:end]
}
