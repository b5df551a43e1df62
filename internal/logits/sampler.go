package logits

import (
	"errors"
	"math"
	"math/rand"
)

// ErrNoCandidates is returned when the mask excludes the entire
// vocabulary.
var ErrNoCandidates = errors.New("mask excludes all candidates")

// SamplerConfig configures the behaviour of a Sampler. A Temperature of 0
// (the zero value) means deterministic argmax.
type SamplerConfig struct {
	Seed        int64
	Temperature float32
	TopK        int
}

type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool
	topIdx []int
	topVal []float32
	prob   []float64
}

// NewSampler returns a new sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := cfg.Temperature <= 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 40
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Sample draws a single token id from the logits vector, restricted to
// the tokens mask allows (nil mask allows everything):
//
//  1. Greedy mode returns the argmax over allowed tokens.
//  2. Otherwise logits are scaled by the inverse temperature and the top
//     k allowed values are shortlisted.
//  3. A softmax over the shortlist is computed with a shared-max
//     subtraction and a random draw selects the index.
//
// The logits slice is not modified.
func (s *Sampler) Sample(logits []float32, mask *Bitset) (int, error) {
	if s.greedy {
		return argmax(logits, mask)
	}

	invTemp := float32(1.0) / s.cfg.Temperature
	k := min(s.cfg.TopK, len(logits))

	topIdx, topVal := s.topK(logits, mask, k, invTemp)
	if len(topVal) == 0 {
		return 0, ErrNoCandidates
	}

	maxv := topVal[0]
	for i := 1; i < len(topVal); i++ {
		if topVal[i] > maxv {
			maxv = topVal[i]
		}
	}

	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	var sum float64
	for i := range topVal {
		e := math.Exp(float64(topVal[i] - maxv))
		prob[i] = e
		sum += e
	}
	if sum == 0 {
		return topIdx[0], nil
	}

	r := s.rng.Float64() * sum
	var c float64
	for i := range prob {
		c += prob[i]
		if r <= c {
			return topIdx[i], nil
		}
	}
	return topIdx[len(topIdx)-1], nil
}

// argmax returns the index of the maximum allowed value.
func argmax(x []float32, mask *Bitset) (int, error) {
	bestI := -1
	var bestV float32
	for i, v := range x {
		if mask != nil && !mask.Test(i) {
			continue
		}
		if bestI < 0 || v > bestV {
			bestI, bestV = i, v
		}
	}
	if bestI < 0 {
		return 0, ErrNoCandidates
	}
	return bestI, nil
}

// topK returns the indices and values of the k largest allowed elements,
// scaled by invTemp and ordered from largest to smallest. O(V*K),
// suitable for small K.
func (s *Sampler) topK(logits []float32, mask *Bitset, k int, invTemp float32) ([]int, []float32) {
	if k <= 0 {
		return nil, nil
	}
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float32, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, l := range logits {
		if mask != nil && !mask.Test(i) {
			continue
		}
		v := l * invTemp

		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)

		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}
