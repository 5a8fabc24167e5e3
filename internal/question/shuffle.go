package question

import "math/rand/v2"

// ShuffleOptions returns a copy of c with its options in random order,
// relabeled from A, and the correct label moved to follow its option.
func ShuffleOptions(c Candidate, rng *rand.Rand) Candidate {
	out := c
	out.Options = make([]Option, len(c.Options))
	copy(out.Options, c.Options)

	correct := c.CorrectIndex()
	order := make([]int, len(out.Options))
	for i := range order {
		order[i] = i
	}
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for pos, src := range order {
		out.Options[pos] = Option{Label: labelAt(pos), Text: c.Options[src].Text}
		if src == correct {
			out.CorrectLabel = labelAt(pos)
		}
	}
	return out
}
