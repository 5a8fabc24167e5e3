package question

import (
	"regexp"
	"strings"
)

var (
	optionRegex      = regexp.MustCompile(`^([A-Fa-f])\)\s*(.*)$`)
	answerRegex      = regexp.MustCompile(`(?i)^[*_]*\s*(?:do[ğg]ru\s+cevap|correct\s+answer)\s*[*_]*\s*:(.*)$`)
	answerLetterRe   = regexp.MustCompile(`^([A-Za-z])(?:[^\p{L}]|$)`)
	explanationRegex = regexp.MustCompile(`(?i)^[*_]*\s*(?:a[çc][ıi]klama|explanation)\s*[*_]*\s*:(.*)$`)
)

type parseState int

const (
	stateStem parseState = iota
	stateOptions
	stateTrailer
)

type fieldRef int

const (
	fieldStem fieldRef = iota
	fieldOption
	fieldExplanation
)

// ParseBlock extracts one candidate from a block in a single pass.
// The result is not validated; see Validate.
func ParseBlock(b Block) Candidate {
	c := Candidate{Ordinal: b.Ordinal}

	var (
		st         = stateStem
		last       = fieldStem
		answerSeen bool
		stem       []string
	)

	appendTo := func(f fieldRef, text string) {
		if text == "" {
			return
		}
		switch f {
		case fieldStem:
			stem = append(stem, text)
		case fieldOption:
			o := &c.Options[len(c.Options)-1]
			o.Text = joinSpace(o.Text, text)
		case fieldExplanation:
			c.Explanation = joinSpace(c.Explanation, text)
		}
	}

	for _, raw := range splitLines(b.Text) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := optionRegex.FindStringSubmatch(line); m != nil {
			if st == stateTrailer {
				appendTo(last, line)
				continue
			}
			c.Options = append(c.Options, Option{
				Label: strings.ToUpper(m[1]),
				Text:  strings.TrimSpace(m[2]),
			})
			st = stateOptions
			last = fieldOption
			continue
		}

		if m := answerRegex.FindStringSubmatch(line); m != nil {
			if !answerSeen {
				answerSeen = true
				c.CorrectLabel = answerLetter(m[1])
			}
			st = stateTrailer
			continue
		}

		if m := explanationRegex.FindStringSubmatch(line); m != nil {
			c.Explanation = joinSpace(c.Explanation, trimEmphasis(m[1]))
			st = stateTrailer
			last = fieldExplanation
			continue
		}

		appendTo(last, line)
	}

	c.Stem = strings.Join(stem, " ")
	return c
}

func answerLetter(rest string) string {
	m := answerLetterRe.FindStringSubmatch(trimEmphasis(rest))
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

func trimEmphasis(s string) string {
	return strings.Trim(strings.TrimSpace(s), "*_ \t")
}

func joinSpace(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}
