package cards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayDeck(t *testing.T) {
	deck, err := DayDeck()
	require.NoError(t, err)
	assert.Len(t, deck, 22)

	for _, c := range deck {
		assert.NotEmpty(t, c.Title)
		assert.NotEmpty(t, c.Description)
	}
}

func TestAdviceDeckMatchesDayDeckTitles(t *testing.T) {
	day, err := DayDeck()
	require.NoError(t, err)
	advice, err := AdviceDeck()
	require.NoError(t, err)

	assert.ElementsMatch(t, Titles(day), Titles(advice))
}

func TestArchetypesCoverDeck(t *testing.T) {
	deck, err := DayDeck()
	require.NoError(t, err)
	archetypes, err := Archetypes()
	require.NoError(t, err)

	for _, c := range deck {
		assert.Contains(t, archetypes, c.Title)
	}
}

func TestMeaningsCoverDeck(t *testing.T) {
	deck, err := DayDeck()
	require.NoError(t, err)
	meanings, err := Meanings()
	require.NoError(t, err)

	for _, c := range deck {
		assert.Contains(t, meanings, c.Title)
	}
}

func TestImageURL(t *testing.T) {
	c := Card{Title: "Колесо Фортуны"}
	assert.Equal(t, ImageBaseURL+"/Колесо_Фортуны.jpg", c.ImageURL())
}

func TestFind(t *testing.T) {
	deck := []Card{{Title: "Шут"}, {Title: "Маг"}}

	got, ok := Find(deck, "Маг")
	require.True(t, ok)
	assert.Equal(t, "Маг", got.Title)

	_, ok = Find(deck, "Нет такой")
	assert.False(t, ok)
}
