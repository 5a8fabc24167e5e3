package generate

import (
	"fmt"
	"strings"

	"qbank/internal/question"
)

var difficultyWords = map[question.Difficulty]string{
	question.DifficultyEasy:   "kolay",
	question.DifficultyMedium: "orta",
	question.DifficultyHard:   "zor",
}

// BuildPrompt renders the instruction sent to the model. The example block
// uses the same line shapes the parser recognises.
func BuildPrompt(content string, count, options int, d question.Difficulty) string {
	word, ok := difficultyWords[d]
	if !ok {
		word = difficultyWords[question.DifficultyMedium]
	}
	labels := make([]string, options)
	for i := range labels {
		labels[i] = string(rune('A' + i))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Aşağıdaki içerik hakkında %d adet %s seviyede çoktan seçmeli soru üret. ", count, word)
	fmt.Fprintf(&sb, "Her soru için %d seçenek (%s) olmalı ve doğru cevabı belirtmelisin. ", options, strings.Join(labels, ", "))
	sb.WriteString("Ayrıca her doğru cevap için kısa bir açıklama ekle.\n\n")
	sb.WriteString("İçerik:\n")
	sb.WriteString(strings.TrimSpace(content))
	sb.WriteString("\n\nÖrnek format:\n1. Soru metni?\n")
	for _, l := range labels {
		fmt.Fprintf(&sb, "%s) Seçenek %s\n", l, l)
	}
	sb.WriteString("Doğru Cevap: B\n")
	sb.WriteString("Açıklama: B'nin doğru cevap olmasının kısa açıklaması.")
	return sb.String()
}
