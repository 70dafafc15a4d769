package catalog

import (
	"sync"
	"sync/atomic"

	"concierge/internal/domain"
)

// Store publishes snapshots by atomic pointer swap. A reader that called
// Current keeps its snapshot for the whole resolution pass.
type Store struct {
	mu  sync.Mutex // orders writers so generations are published in sequence
	cur atomic.Pointer[Index]
	gen uint64
}

func NewStore() *Store { return &Store{} }

// Current returns the live snapshot, or nil before the first Replace.
func (s *Store) Current() *Index { return s.cur.Load() }

// Replace builds a new snapshot from d and swaps it in. On error the
// previous snapshot stays live.
func (s *Store) Replace(d domain.CatalogData) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, err := Build(d, s.gen+1)
	if err != nil {
		return nil, err
	}
	s.gen++
	s.cur.Store(ix)
	return ix, nil
}
