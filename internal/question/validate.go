package question

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidCandidate = errors.New("invalid candidate")

// Validate checks the structural invariants of a parsed candidate.
func Validate(c Candidate) error {
	if strings.TrimSpace(c.Stem) == "" {
		return fmt.Errorf("%w: stem is empty", ErrInvalidCandidate)
	}
	if len(c.Options) < 2 {
		return fmt.Errorf("%w: need at least 2 options, got %d", ErrInvalidCandidate, len(c.Options))
	}

	seen := map[string]struct{}{}
	for i, o := range c.Options {
		if _, ok := seen[o.Label]; ok {
			return fmt.Errorf("%w: duplicate option label '%s'", ErrInvalidCandidate, o.Label)
		}
		seen[o.Label] = struct{}{}
		if want := labelAt(i); o.Label != want {
			return fmt.Errorf("%w: option %d labeled '%s', expected '%s'", ErrInvalidCandidate, i+1, o.Label, want)
		}
		if strings.TrimSpace(o.Text) == "" {
			return fmt.Errorf("%w: option '%s' has no text", ErrInvalidCandidate, o.Label)
		}
	}

	if c.CorrectLabel == "" {
		return fmt.Errorf("%w: correct answer is missing", ErrInvalidCandidate)
	}
	if _, ok := seen[c.CorrectLabel]; !ok {
		return fmt.Errorf("%w: correct answer '%s' is not one of the options", ErrInvalidCandidate, c.CorrectLabel)
	}
	return nil
}

func labelAt(i int) string {
	return string(rune('A' + i))
}

// ValidateApproved applies the candidate rules to a record arriving at the
// persistence boundary.
func ValidateApproved(q ApprovedQuestion) error {
	if _, ok := ParseDifficulty(string(q.Difficulty)); !ok {
		return fmt.Errorf("%w: unknown difficulty '%s'", ErrInvalidCandidate, q.Difficulty)
	}
	return Validate(Candidate{
		Stem:         q.Stem,
		Options:      q.Options,
		CorrectLabel: q.CorrectAnswer,
	})
}
