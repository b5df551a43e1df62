// Package logits holds the stateless probability math and the sampling
// policy applied to raw next-token logits.
package logits

// Bitset restricts the vocabulary during sampling and probability
// queries. Bit n lives in word n>>5 at position n&31. A nil *Bitset means
// no restriction.
type Bitset struct {
	words []uint32
	n     int
}

// NewBitset returns an empty (all-excluded) bitset over n tokens.
func NewBitset(n int) *Bitset {
	return &Bitset{words: make([]uint32, (n+31)/32), n: n}
}

// BitsetFromWords wraps a caller-supplied word array over n tokens.
// Missing trailing words read as zero.
func BitsetFromWords(words []uint32, n int) *Bitset {
	return &Bitset{words: words, n: n}
}

// Len returns the number of tokens the bitset covers.
func (b *Bitset) Len() int { return b.n }

// Set marks token i as allowed.
func (b *Bitset) Set(i int) {
	if i >= 0 && i < b.n && i>>5 < len(b.words) {
		b.words[i>>5] |= 1 << (i & 31)
	}
}

// Clear marks token i as excluded.
func (b *Bitset) Clear(i int) {
	if i >= 0 && i < b.n && i>>5 < len(b.words) {
		b.words[i>>5] &^= 1 << (i & 31)
	}
}

// Test reports whether token i is allowed.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	w := i >> 5
	if w >= len(b.words) {
		return false
	}
	return b.words[w]&(1<<(i&31)) != 0
}

// Words returns the backing word array.
func (b *Bitset) Words() []uint32 { return b.words }
