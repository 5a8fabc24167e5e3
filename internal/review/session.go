package review

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"qbank/internal/question"
)

var (
	ErrInvalidState      = errors.New("operation not allowed in current session state")
	ErrNoApprovedItems   = errors.New("no approved questions to commit")
	ErrCommitInProgress  = errors.New("commit already in progress")
	ErrCommitFailed      = errors.New("commit failed")
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrInvalidCandidates = errors.New("invalid candidate list")
)

type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateCommitting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateCommitting:
		return "committing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CommitError is returned when the committer fails. The session is back in
// the loaded state with approvals untouched, so the call can be retried.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("%v: %v", ErrCommitFailed, e.Err)
}

func (e *CommitError) Unwrap() []error {
	return []error{ErrCommitFailed, e.Err}
}

// Committer writes an approved batch to a destination.
type Committer interface {
	Commit(ctx context.Context, targetID int64, items []question.ApprovedQuestion) error
}

// Session holds parsed candidates while a reviewer approves a subset.
// It is safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	state      State
	candidates []question.Candidate
	cursor     int
}

type Snapshot struct {
	State         State                `json:"state"`
	Cursor        int                  `json:"cursor"`
	ApprovedCount int                  `json:"approved_count"`
	Candidates    []question.Candidate `json:"candidates"`
}

func NewSession() *Session {
	return &Session{state: StateEmpty}
}

// Load replaces the candidate list. Only an empty or closed session can be
// loaded.
func (s *Session) Load(cands []question.Candidate) error {
	seen := make(map[string]struct{}, len(cands))
	for i, c := range cands {
		if c.ID == "" {
			return fmt.Errorf("%w: candidate %d has no id", ErrInvalidCandidates, i)
		}
		if _, ok := seen[c.ID]; ok {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidCandidates, c.ID)
		}
		seen[c.ID] = struct{}{}
		if i > 0 && c.Ordinal <= cands[i-1].Ordinal {
			return fmt.Errorf("%w: ordinals must increase", ErrInvalidCandidates)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEmpty && s.state != StateClosed {
		return fmt.Errorf("%w: load while %s", ErrInvalidState, s.state)
	}
	s.candidates = make([]question.Candidate, len(cands))
	copy(s.candidates, cands)
	s.cursor = 0
	s.state = StateLoaded
	return nil
}

// ToggleApproval flips one candidate and returns its new approval.
func (s *Session) ToggleApproval(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateLoaded:
	case StateCommitting:
		return false, ErrCommitInProgress
	default:
		return false, fmt.Errorf("%w: toggle while %s", ErrInvalidState, s.state)
	}
	for i := range s.candidates {
		if s.candidates[i].ID == id {
			s.candidates[i].Approved = !s.candidates[i].Approved
			return s.candidates[i].Approved, nil
		}
	}
	return false, ErrCandidateNotFound
}

// SetCursor clamps i into the list bounds and returns the new cursor.
func (s *Session) SetCursor(i int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.candidates) == 0 {
		return s.cursor
	}
	if i < 0 {
		i = 0
	}
	if i > len(s.candidates)-1 {
		i = len(s.candidates) - 1
	}
	s.cursor = i
	return s.cursor
}

// Cancel discards the candidates without persisting anything.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateLoaded:
		s.reset()
		return nil
	case StateCommitting:
		return ErrCommitInProgress
	default:
		return fmt.Errorf("%w: cancel while %s", ErrInvalidState, s.state)
	}
}

// Commit hands the approved subset, in source order, to c. The lock is not
// held during the call. On success the session closes; on failure it
// returns to loaded unchanged and the error matches ErrCommitFailed.
func (s *Session) Commit(ctx context.Context, c Committer, targetID int64) (int, error) {
	s.mu.Lock()
	switch s.state {
	case StateLoaded:
	case StateCommitting:
		s.mu.Unlock()
		return 0, ErrCommitInProgress
	default:
		st := s.state
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: commit while %s", ErrInvalidState, st)
	}

	approved := make([]question.ApprovedQuestion, 0, len(s.candidates))
	for _, cand := range s.candidates {
		if cand.Approved {
			approved = append(approved, cand.ToApproved())
		}
	}
	if len(approved) == 0 {
		s.mu.Unlock()
		return 0, ErrNoApprovedItems
	}
	s.state = StateCommitting
	s.mu.Unlock()

	err := c.Commit(ctx, targetID, approved)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateLoaded
		return 0, &CommitError{Err: err}
	}
	s.reset()
	return len(approved), nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		State:      s.state,
		Cursor:     s.cursor,
		Candidates: make([]question.Candidate, len(s.candidates)),
	}
	copy(out.Candidates, s.candidates)
	for _, c := range s.candidates {
		if c.Approved {
			out.ApprovedCount++
		}
	}
	return out
}

func (s *Session) reset() {
	s.candidates = nil
	s.cursor = 0
	s.state = StateClosed
}
