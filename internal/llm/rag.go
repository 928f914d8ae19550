package llm

import (
	"strings"

	"github.com/netebla/Milky-Tarot/internal/cards"
)

// withCardContext prepends the extended meanings of the drawn cards to the
// base prompt. Only cards that actually fell in the spread contribute, and
// the model is told not to reveal that this context was passed separately.
// With no meanings available the base prompt goes out untouched.
func withCardContext(basePrompt string, drawn []cards.Card, meanings map[string]string) string {
	var snippets []string
	for _, card := range drawn {
		if meaning, ok := meanings[card.Title]; ok {
			snippets = append(snippets, card.Title+": "+meaning)
		}
	}
	if len(snippets) == 0 {
		return basePrompt
	}

	var b strings.Builder
	b.WriteString("Ниже приведены дополнительные трактовки карт, которые выпали в раскладе. ")
	b.WriteString("Не ссылайся на этот контекст напрямую и не упоминай, что он был отдельно передан — ")
	b.WriteString("просто используй его смысл внутри живой, человечной трактовки.\n\n")
	b.WriteString("Дополнительные трактовки только для выпавших в раскладе карт:\n")
	b.WriteString(strings.Join(snippets, "\n\n"))
	b.WriteString("\n\n---\n\n")
	b.WriteString(basePrompt)
	return b.String()
}
