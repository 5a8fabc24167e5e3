package question

import (
	"regexp"
	"strconv"
	"strings"
)

var markerRegex = regexp.MustCompile(`^\s*(\d+)\.(?:\s+(.*)|$)`)

// Block is the text belonging to one numbered question.
type Block struct {
	Ordinal int
	Number  int
	Text    string
}

// Segment splits text into at most n blocks, one per numbered marker line.
// Lines before the first marker are dropped. Once n blocks are open, further
// marker lines are kept as ordinary text of the last block.
func Segment(text string, n int) []Block {
	if n <= 0 {
		return nil
	}

	var (
		blocks []Block
		cur    []string
	)
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		blocks[len(blocks)-1].Text = strings.TrimSpace(strings.Join(cur, "\n"))
	}

	for _, line := range splitLines(text) {
		if len(blocks) < n {
			if m := markerRegex.FindStringSubmatch(line); m != nil {
				flush()
				num, _ := strconv.Atoi(m[1])
				blocks = append(blocks, Block{Ordinal: len(blocks) + 1, Number: num})
				cur = []string{m[2]}
				continue
			}
		}
		if len(blocks) == 0 {
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return blocks
}

// CountMarkers reports how many lines look like question markers.
func CountMarkers(text string) int {
	n := 0
	for _, line := range splitLines(text) {
		if markerRegex.MatchString(line) {
			n++
		}
	}
	return n
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}
