package question

import "strings"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty accepts the English names and their Turkish labels.
// Empty input falls back to medium.
func ParseDifficulty(v string) (Difficulty, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return DifficultyMedium, true
	case "easy", "kolay":
		return DifficultyEasy, true
	case "medium", "orta":
		return DifficultyMedium, true
	case "hard", "zor":
		return DifficultyHard, true
	default:
		return "", false
	}
}

type Option struct {
	Label string `json:"label" yaml:"label"`
	Text  string `json:"text" yaml:"text"`
}

// Candidate is a parsed question awaiting review. Approved is the only
// field that changes after the pipeline creates it.
type Candidate struct {
	ID           string     `json:"id"`
	Ordinal      int        `json:"ordinal"`
	Stem         string     `json:"stem"`
	Options      []Option   `json:"options"`
	CorrectLabel string     `json:"correct_answer"`
	Explanation  string     `json:"explanation"`
	Difficulty   Difficulty `json:"difficulty"`
	Approved     bool       `json:"approved"`
}

// CorrectIndex returns the position of the option carrying the correct
// label, or -1.
func (c Candidate) CorrectIndex() int {
	for i, o := range c.Options {
		if o.Label == c.CorrectLabel {
			return i
		}
	}
	return -1
}

// ToApproved returns the shape that crosses the persistence boundary.
func (c Candidate) ToApproved() ApprovedQuestion {
	opts := make([]Option, len(c.Options))
	copy(opts, c.Options)
	return ApprovedQuestion{
		Stem:          c.Stem,
		Options:       opts,
		CorrectAnswer: c.CorrectLabel,
		Explanation:   c.Explanation,
		Difficulty:    c.Difficulty,
	}
}

// ApprovedQuestion is the public record written to a question pool.
type ApprovedQuestion struct {
	Stem          string     `json:"stem" yaml:"stem"`
	Options       []Option   `json:"options" yaml:"options"`
	CorrectAnswer string     `json:"correct_answer" yaml:"correct_answer"`
	Explanation   string     `json:"explanation" yaml:"explanation"`
	Difficulty    Difficulty `json:"difficulty" yaml:"difficulty"`
}
