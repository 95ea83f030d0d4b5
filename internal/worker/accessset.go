package worker

import "sync"

// AccessSet tracks auctions touched since the last resync cycle. It is
// advisory, not authoritative: losing an entry only delays a rebuild until
// the auction is touched again. Draining every cycle keeps it bounded.
type AccessSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewAccessSet returns an empty set.
func NewAccessSet() *AccessSet {
	return &AccessSet{ids: make(map[string]struct{})}
}

// Track records an auction as touched.
func (s *AccessSet) Track(auctionID string) {
	if auctionID == "" {
		return
	}
	s.mu.Lock()
	s.ids[auctionID] = struct{}{}
	s.mu.Unlock()
}

// Drain returns every tracked auction and clears the set.
func (s *AccessSet) Drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	s.ids = make(map[string]struct{})
	return ids
}

// Len reports how many auctions are currently tracked.
func (s *AccessSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
