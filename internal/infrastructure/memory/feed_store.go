package memory

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/minishop-orders/internal/application/feed"
)

// FeedStore holds order timelines in insertion order.
type FeedStore struct {
	mu      sync.RWMutex
	entries map[int64][]feed.Entry
}

func NewFeedStore() *FeedStore {
	return &FeedStore{entries: make(map[int64][]feed.Entry)}
}

func (s *FeedStore) Append(_ context.Context, e feed.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.OrderID] = append(s.entries[e.OrderID], e)
	return nil
}

func (s *FeedStore) Timeline(_ context.Context, orderID int64) ([]feed.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]feed.Entry(nil), s.entries[orderID]...), nil
}
