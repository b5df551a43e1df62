package api

import (
	"sync"

	"github.com/google/uuid"

	"github.com/samcharles93/loom/internal/session"
)

// SequenceStore tracks live sequences by id. Destroyed sequences are
// removed so their KV-cache claims and buffers cannot be resurrected by
// a stale handle.
type SequenceStore struct {
	mu        sync.Mutex
	sequences map[uuid.UUID]*session.Session
}

func NewSequenceStore() *SequenceStore {
	return &SequenceStore{
		sequences: make(map[uuid.UUID]*session.Session),
	}
}

func (s *SequenceStore) Add(seq *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[seq.ID()] = seq
}

func (s *SequenceStore) Get(id uuid.UUID) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[id]
	return seq, ok
}

// Remove drops the sequence from the registry and returns it, if present.
func (s *SequenceStore) Remove(id uuid.UUID) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[id]
	if ok {
		delete(s.sequences, id)
	}
	return seq, ok
}

// DestroyAll destroys every live sequence. Used at server shutdown.
func (s *SequenceStore) DestroyAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, seq := range s.sequences {
		_ = seq.Destroy()
		delete(s.sequences, id)
	}
}
