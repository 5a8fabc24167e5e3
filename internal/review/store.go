package review

import (
	"errors"
	"sync"
	"time"

	"qbank/internal/question"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("review session not found")

// Entry is a stored session together with the run that produced it.
type Entry struct {
	ID        string
	OwnerID   int64
	Origin    string
	Report    question.Report
	Session   *Session
	CreatedAt time.Time

	expiresAt time.Time
}

// Store keeps review sessions in memory. Entries expire after ttl without
// access.
type Store struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]*Entry
	now   func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{
		ttl:   ttl,
		items: make(map[string]*Entry),
		now:   time.Now,
	}
}

// Create loads the candidates of a pipeline run into a fresh session.
func (s *Store) Create(ownerID int64, origin string, res question.Result) (*Entry, error) {
	sess := NewSession()
	if err := sess.Load(res.Candidates); err != nil {
		return nil, err
	}

	now := s.now()
	e := &Entry{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Origin:    origin,
		Report:    res.Report,
		Session:   sess,
		CreatedAt: now,
		expiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.items[e.ID] = e
	s.mu.Unlock()
	return e, nil
}

// Get returns the owner's session and extends its lifetime.
func (s *Store) Get(id string, ownerID int64) (*Entry, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if now.After(e.expiresAt) && e.Session.State() != StateCommitting {
		delete(s.items, id)
		return nil, ErrSessionNotFound
	}
	if e.OwnerID != ownerID {
		return nil, ErrSessionNotFound
	}
	e.expiresAt = now.Add(s.ttl)
	return e, nil
}

// ExpiresAt reports when the entry lapses. Get moves the deadline, so it is
// read under the store lock.
func (s *Store) ExpiresAt(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return time.Time{}, false
	}
	return e.expiresAt, true
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Sweep drops expired entries and reports how many were removed.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.items {
		if now.After(e.expiresAt) && e.Session.State() != StateCommitting {
			delete(s.items, id)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
