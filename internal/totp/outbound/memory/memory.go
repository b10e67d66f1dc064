// Package memory is an in-process counter store for tests and single-node
// deployments. Counters are lost on restart, which re-opens replay of codes
// still inside their window.
package memory

import (
	"context"
	"sync"

	"github.com/shandysiswandi/otpguard/internal/totp/entity"
)

type Store struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewStore() *Store {
	return &Store{counters: make(map[string]int64)}
}

func (s *Store) GetLastCounter(_ context.Context, userID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[userID]
	return c, ok, nil
}

// SetLastCounter stores counter only when it is greater than the stored value.
func (s *Store) SetLastCounter(_ context.Context, userID string, counter int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.counters[userID]; ok && c >= counter {
		return entity.ErrStaleCounter
	}
	s.counters[userID] = counter
	return nil
}

// Len returns the number of users with a stored counter.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
