package question

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrEmptyInput   = errors.New("input text is empty")
	ErrNoCandidates = errors.New("no valid questions found")
)

type WarningKind string

const (
	WarningShortfall WarningKind = "segmentation_shortfall"
	WarningRejected  WarningKind = "parse_rejected"
)

type Warning struct {
	Kind    WarningKind `json:"kind"`
	Ordinal int         `json:"ordinal,omitempty"`
	Number  int         `json:"number,omitempty"`
	Message string      `json:"message"`
}

// Report aggregates everything that went wrong in a run without failing it.
type Report struct {
	Requested int       `json:"requested"`
	Segmented int       `json:"segmented"`
	Parsed    int       `json:"parsed"`
	Rejected  int       `json:"rejected"`
	Warnings  []Warning `json:"warnings"`
}

func (r Report) Summary() string {
	return fmt.Sprintf("parsed %d of %d requested", r.Parsed, r.Requested)
}

func (r Report) Shortfall() bool {
	return r.Parsed < r.Requested
}

type RunOptions struct {
	// Requested caps the number of candidates. Zero or less means one per
	// marker line found in the text.
	Requested  int
	Difficulty Difficulty
	NewID      func() string
	// Shuffle reorders the options of every accepted candidate.
	Shuffle bool
	Rand    *rand.Rand
}

type Result struct {
	Candidates []Candidate `json:"candidates"`
	Report     Report      `json:"report"`
}

// Run segments, parses and validates text. Malformed blocks are dropped and
// recorded in the report. ErrNoCandidates is returned together with the
// report when nothing survives.
func Run(text string, opts RunOptions) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyInput
	}

	requested := opts.Requested
	if requested <= 0 {
		requested = CountMarkers(text)
	}
	difficulty := opts.Difficulty
	if difficulty == "" {
		difficulty = DifficultyMedium
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	rep := Report{Requested: requested, Warnings: []Warning{}}
	blocks := Segment(text, requested)
	rep.Segmented = len(blocks)
	if len(blocks) < requested {
		rep.Warnings = append(rep.Warnings, Warning{
			Kind:    WarningShortfall,
			Message: fmt.Sprintf("found %d of %d requested questions", len(blocks), requested),
		})
	}

	out := make([]Candidate, 0, len(blocks))
	for _, b := range blocks {
		c := ParseBlock(b)
		if err := Validate(c); err != nil {
			rep.Rejected++
			rep.Warnings = append(rep.Warnings, Warning{
				Kind:    WarningRejected,
				Ordinal: b.Ordinal,
				Number:  b.Number,
				Message: err.Error(),
			})
			continue
		}
		if opts.Shuffle {
			c = ShuffleOptions(c, opts.Rand)
		}
		c.ID = newID()
		c.Difficulty = difficulty
		out = append(out, c)
	}
	rep.Parsed = len(out)

	res := Result{Candidates: out, Report: rep}
	if len(out) == 0 {
		return res, ErrNoCandidates
	}
	return res, nil
}
