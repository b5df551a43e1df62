package logits

import "math"

// LogProbs computes a numerically stable log-softmax over logits. Entries
// excluded by mask are treated as -Inf before the max and the
// normalization sum, and come out as -Inf in the result. A nil mask
// allows the full vocabulary.
func LogProbs(logits []float32, mask *Bitset) []float32 {
	out := make([]float32, len(logits))

	maxv := math.Inf(-1)
	for i, l := range logits {
		if mask != nil && !mask.Test(i) {
			continue
		}
		if v := float64(l); v > maxv {
			maxv = v
		}
	}
	if math.IsInf(maxv, -1) {
		// Everything excluded.
		for i := range out {
			out[i] = float32(math.Inf(-1))
		}
		return out
	}

	var sum float64
	for i, l := range logits {
		if mask != nil && !mask.Test(i) {
			continue
		}
		sum += math.Exp(float64(l) - maxv)
	}
	lse := maxv + math.Log(sum)

	for i, l := range logits {
		if mask != nil && !mask.Test(i) {
			out[i] = float32(math.Inf(-1))
			continue
		}
		out[i] = float32(float64(l) - lse)
	}
	return out
}

// Surprise compares the model's full probability mass against the mass it
// assigns inside the allowed set: total / allowed, computed with a shared
// max. 1.0 means the mask excluded nothing probable; values of ~100 or
// more mean the distribution lies almost entirely outside the allowed
// set. When the allowed set carries zero mass the ratio is +Inf.
func Surprise(logits []float32, mask *Bitset) float64 {
	if len(logits) == 0 {
		return math.Inf(1)
	}

	maxv := float64(logits[0])
	for _, l := range logits[1:] {
		if v := float64(l); v > maxv {
			maxv = v
		}
	}

	var total, allowed float64
	for i, l := range logits {
		e := math.Exp(float64(l) - maxv)
		total += e
		if mask == nil || mask.Test(i) {
			allowed += e
		}
	}
	if allowed == 0 {
		return math.Inf(1)
	}
	return total / allowed
}
