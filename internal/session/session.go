// Package session tracks ingests that were routed but not yet committed:
// each client key holds at most one pending note awaiting confirmation,
// a type override, or late derived content.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aeshef/knowledge-bot/internal/apperr"
	"github.com/aeshef/knowledge-bot/internal/models"
)

// DefaultTTL is how long a pending ingest survives without activity.
const DefaultTTL = 24 * time.Hour

// Pending is one routed-but-uncommitted ingest.
type Pending struct {
	ID        string
	Key       string
	Payload   *models.Payload
	Summary   *models.Summary
	Source    string
	CreatedAt time.Time
}

// Store holds pending ingests in memory. One pending per key: a new ingest
// on the same key replaces the previous one, mirroring a chat flow where
// only the latest message can be confirmed.
type Store struct {
	mu   sync.Mutex
	byID map[string]*Pending
	keys map[string]string // key → pending id
	ttl  time.Duration
	now  func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL overrides the pending lifetime.
func WithTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.ttl = d }
}

func withClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		byID: map[string]*Pending{},
		keys: map[string]string{},
		ttl:  DefaultTTL,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put registers a routed payload as pending for a key, replacing any
// previous pending on that key, and returns its id.
func (s *Store) Put(key string, payload *models.Payload, summary *models.Summary, source string) *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	if oldID, ok := s.keys[key]; ok {
		delete(s.byID, oldID)
	}
	p := &Pending{
		ID:        uuid.NewString(),
		Key:       key,
		Payload:   payload,
		Summary:   summary,
		Source:    source,
		CreatedAt: s.now(),
	}
	s.byID[p.ID] = p
	s.keys[key] = p.ID
	return p
}

// Get returns the pending ingest by id.
func (s *Store) Get(id string) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	p, ok := s.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return p, nil
}

// Update replaces the payload and summary of a pending ingest in place.
func (s *Store) Update(id string, payload *models.Payload, summary *models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return apperr.ErrNotFound
	}
	p.Payload = payload
	p.Summary = summary
	return nil
}

// Take removes and returns a pending ingest; used on confirm and cancel.
func (s *Store) Take(id string) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	delete(s.byID, id)
	if s.keys[p.Key] == id {
		delete(s.keys, p.Key)
	}
	return p, nil
}

// Len reports how many ingests are pending.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.byID)
}

// sweepLocked drops expired pendings. Caller holds mu.
func (s *Store) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, p := range s.byID {
		if p.CreatedAt.Before(cutoff) {
			delete(s.byID, id)
			if s.keys[p.Key] == id {
				delete(s.keys, p.Key)
			}
		}
	}
}
