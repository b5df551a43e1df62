package engine

import (
	"errors"
	"sync"
)

// ErrBufferReleased is returned when a logits buffer is read after its
// underlying device memory has been released.
var ErrBufferReleased = errors.New("logits buffer already released")

// LogitsBuffer is the single-owner handle to one vector of next-token
// logits. The backing device memory belongs to the pipeline; whoever holds
// the buffer must call Release exactly once before replacing or dropping
// it, otherwise the device allocation leaks.
type LogitsBuffer struct {
	mu       sync.Mutex
	data     []float32
	free     func()
	released bool
}

// NewLogitsBuffer wraps a host-visible logits vector. free is invoked on
// Release and may be nil for buffers with no device backing.
func NewLogitsBuffer(data []float32, free func()) *LogitsBuffer {
	return &LogitsBuffer{data: data, free: free}
}

// Len returns the vocabulary size of the buffer, or 0 after release.
func (b *LogitsBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return 0
	}
	return len(b.data)
}

// Clone copies the logits out into a fresh slice.
func (b *LogitsBuffer) Clone() ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrBufferReleased
	}
	out := make([]float32, len(b.data))
	copy(out, b.data)
	return out, nil
}

// Release frees the underlying device memory. It is idempotent.
func (b *LogitsBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	b.data = nil
	if b.free != nil {
		b.free()
		b.free = nil
	}
}
