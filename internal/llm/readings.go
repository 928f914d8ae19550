package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/netebla/Milky-Tarot/internal/cards"
)

// ThreeCardMaxLength and NewYearMaxLength are soft answer-length targets
// passed into the prompts.
const (
	ThreeCardMaxLength = 1200
	NewYearMaxLength   = 800
)

// Question is one themed question of the new-year spread.
type Question struct {
	Category string
	Question string
}

// NewYearQuestions are the thirteen questions of the new-year spread, asked
// in order, one card each.
var NewYearQuestions = []Question{
	{Category: "Про меня", Question: "Что будет главным для меня в этом году?"},
	{Category: "Про деньги", Question: "Что будет с моими доходами в этом году?"},
	{Category: "Про общение и дела", Question: "Что будет происходить в социальной сфере?"},
	{Category: "Про дом и семью", Question: "Что будет происходить дома и в семье в этом году?"},
	{Category: "Про любовь и удовольствие", Question: "Что будет в личной жизни и радостях в этом году?"},
	{Category: "Про здоровье и режим", Question: "Что будет с моим здоровьем и повседневным режимом в этом году?"},
	{Category: "Про партнёрство", Question: "Что будет в серьёзных отношениях и сотрудничествах в этом году?"},
	{Category: "Внутреннее года", Question: "Что мне в себе лучше всего проработать в этом году?"},
	{Category: "Про поездки и расширение", Question: "Какие важные поездки возможны в этом году?"},
	{Category: "Про работу и статус", Question: "Как будет развиваться моя карьера и статус в этом году?"},
	{Category: "Про друзей и круг общения", Question: "Какие люди придут в мою жизнь в этом году?"},
	{Category: "Про скрытое", Question: "Что будет \"за кадром\" и сильнее всего влиять на меня в этом году?"},
	{Category: "Итог года", Question: "Какой будет общий итог этого года для меня?"},
}

// Reader generates the LLM-backed readings.
type Reader struct {
	client   *Client
	meanings map[string]string
}

// NewReader creates a Reader; meanings enrich every prompt with the drawn
// cards' interpretations.
func NewReader(client *Client, meanings map[string]string) *Reader {
	return &Reader{client: client, meanings: meanings}
}

// ThreeCardReading generates the reading for a three-card spread and the
// user's question. An empty question is allowed.
func (r *Reader) ThreeCardReading(ctx context.Context, drawn []cards.Card, question string) (string, error) {
	prompt := withCardContext(threeCardPrompt(drawn, question), drawn, r.meanings)
	return r.client.Generate(ctx, prompt)
}

// NewYearReading generates the reading for one question of the new-year
// spread.
func (r *Reader) NewYearReading(ctx context.Context, card cards.Card, q Question, index, total int) (string, error) {
	prompt := withCardContext(newYearPrompt(card, q, index, total), []cards.Card{card}, r.meanings)
	return r.client.Generate(ctx, prompt)
}

func threeCardPrompt(drawn []cards.Card, question string) string {
	titles := strings.Join(cards.Titles(drawn), ", ")
	question = strings.TrimSpace(question)
	questionClause := "Вопрос клиента не указан. "
	if question != "" {
		questionClause = fmt.Sprintf("Вопрос клиента: %s. ", question)
	}
	return "Ты — таролог, делающий ясные и земные объяснения. " +
		"Используй только обычный связный текст без Markdown, списков, эмодзи или символов форматирования. " +
		"Ответ должен быть разделён на несколько абзацев с завершёнными мыслями. " +
		"Сделай трактовку расклада \"Три карты\". " +
		fmt.Sprintf("Карты: %s. ", titles) +
		questionClause +
		"Объясни общую энергию расклада, коротко опиши роль каждой карты и заверши практическим советом. " +
		fmt.Sprintf("Уложись примерно в %d символов и избегай эзотерических терминов, которые могут быть непонятны новичку.", ThreeCardMaxLength)
}

func newYearPrompt(card cards.Card, q Question, index, total int) string {
	return "Ты — таролог, делающий ясные и земные объяснения для новогоднего расклада на 2026 год. " +
		"Используй только обычный связный текст без Markdown, списков, эмодзи или символов форматирования. " +
		"Ответ должен быть разделён на несколько абзацев с завершёнными мыслями. " +
		fmt.Sprintf("Это вопрос %d из %d в новогоднем раскладе. ", index, total) +
		fmt.Sprintf("Категория: %s. ", q.Category) +
		fmt.Sprintf("Вопрос: %s. ", q.Question) +
		fmt.Sprintf("Выпавшая карта: %s. ", card.Title) +
		"Учитывай контекст нового года 2026 — это время новых возможностей, изменений и роста. " +
		"Сделай трактовку карты в контексте этого конкретного вопроса о годе. " +
		"Объясни, что карта говорит именно об этой сфере жизни в 2026 году. " +
		"Будь конкретным и практичным, избегай общих фраз. " +
		fmt.Sprintf("Уложись примерно в %d символов и избегай эзотерических терминов, которые могут быть непонятны новичку.", NewYearMaxLength)
}
