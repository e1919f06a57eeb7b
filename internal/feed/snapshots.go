package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Snapshots is the in-process latest-quote store.
type Snapshots struct {
	mu     sync.RWMutex
	quotes map[domain.QuoteKey]domain.TopOfBook
}

var (
	_ domain.PushFeed  = (*Snapshots)(nil)
	_ domain.QuoteSink = (*Snapshots)(nil)
)

// NewSnapshots returns an empty store.
func NewSnapshots() *Snapshots {
	return &Snapshots{quotes: make(map[domain.QuoteKey]domain.TopOfBook)}
}

// SetTopOfBook implements domain.QuoteSink.
func (s *Snapshots) SetTopOfBook(_ context.Context, q domain.TopOfBook) error {
	s.mu.Lock()
	s.quotes[q.Key()] = q
	s.mu.Unlock()
	return nil
}

// GetTopOfBook implements domain.PushFeed.
func (s *Snapshots) GetTopOfBook(_ context.Context, venue, symbol string, category domain.MarketCategory) (domain.TopOfBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[domain.QuoteKey{Venue: venue, Symbol: symbol, Category: category}]
	if !ok {
		return domain.TopOfBook{}, fmt.Errorf("feed: %s/%s: %w", venue, symbol, domain.ErrNotFound)
	}
	return q, nil
}

// Len returns the number of series held.
func (s *Snapshots) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.quotes)
}
