package generate

import (
	"errors"
	"fmt"
	"strings"

	"qbank/internal/question"
)

var ErrInvalidRequest = errors.New("invalid generation request")

const (
	MaxCount         = 10
	MinOptions       = 2
	MaxOptions       = 6
	DefaultOptions   = 4
	DefaultFileCount = 5
	maxPromptRunes   = 100000
)

// Request is the input of a model-backed run.
type Request struct {
	Prompt             string `json:"prompt"`
	Count              int    `json:"count"`
	OptionsPerQuestion int    `json:"options_per_question"`
	Difficulty         string `json:"difficulty"`
	Model              string `json:"model"`
	ShuffleOptions     bool   `json:"shuffle_options"`
}

// Normalize applies defaults and range checks.
func (r Request) Normalize(defaultModel string) (Request, question.Difficulty, error) {
	out := r
	out.Prompt = strings.TrimSpace(r.Prompt)
	if out.Prompt == "" {
		return Request{}, "", fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if len([]rune(out.Prompt)) > maxPromptRunes {
		return Request{}, "", fmt.Errorf("%w: prompt exceeds %d characters", ErrInvalidRequest, maxPromptRunes)
	}
	if out.Count < 1 || out.Count > MaxCount {
		return Request{}, "", fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidRequest, MaxCount)
	}
	if out.OptionsPerQuestion == 0 {
		out.OptionsPerQuestion = DefaultOptions
	}
	if out.OptionsPerQuestion < MinOptions || out.OptionsPerQuestion > MaxOptions {
		return Request{}, "", fmt.Errorf("%w: options_per_question must be between %d and %d", ErrInvalidRequest, MinOptions, MaxOptions)
	}
	d, ok := question.ParseDifficulty(r.Difficulty)
	if !ok {
		return Request{}, "", fmt.Errorf("%w: difficulty must be easy, medium or hard", ErrInvalidRequest)
	}
	out.Difficulty = string(d)
	out.Model = strings.TrimSpace(r.Model)
	if out.Model == "" {
		out.Model = defaultModel
	}
	if out.Model == "" {
		return Request{}, "", fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	return out, d, nil
}

// Source is raw text ready for the shared question pipeline. The paste,
// prompt and file adapters differ only in how they fill it.
type Source struct {
	Origin     string
	Text       string
	Requested  int
	Difficulty question.Difficulty
	Shuffle    bool
}

func (s Source) Run() (question.Result, error) {
	return question.Run(s.Text, question.RunOptions{
		Requested:  s.Requested,
		Difficulty: s.Difficulty,
		Shuffle:    s.Shuffle,
	})
}

// FromPaste wraps author-supplied text. A zero count means one question per
// numbered marker, capped at maxCount.
func FromPaste(text string, count int, difficulty string, maxCount int) (Source, error) {
	if strings.TrimSpace(text) == "" {
		return Source{}, question.ErrEmptyInput
	}
	if maxCount <= 0 {
		maxCount = 100
	}
	if count < 0 || count > maxCount {
		return Source{}, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidRequest, maxCount)
	}
	d, ok := question.ParseDifficulty(difficulty)
	if !ok {
		return Source{}, fmt.Errorf("%w: difficulty must be easy, medium or hard", ErrInvalidRequest)
	}
	if count == 0 {
		count = min(question.CountMarkers(text), maxCount)
	}
	return Source{
		Origin:     "paste",
		Text:       text,
		Requested:  count,
		Difficulty: d,
	}, nil
}
