package ruleset

import "sync/atomic"

// Store holds the currently published RuleSet. Refreshes publish a wholly new
// RuleSet; evaluations in flight keep whichever instance they loaded, so no
// locking is needed on the read path.
type Store struct {
	current atomic.Pointer[RuleSet]
}

// NewStore returns an empty store. Load returns nil until the first Publish.
func NewStore() *Store {
	return &Store{}
}

// Load returns the currently published RuleSet, or nil if none has been
// published yet.
func (s *Store) Load() *RuleSet {
	return s.current.Load()
}

// Publish atomically replaces the published RuleSet.
func (s *Store) Publish(rs *RuleSet) {
	s.current.Store(rs)
}
