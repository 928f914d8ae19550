// Package cards loads the embedded tarot catalogs: the card-of-the-day deck,
// the advice deck, the year-energy archetypes and the extended meanings used
// as LLM context.
package cards

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"
)

//go:embed data/*.csv
var dataFS embed.FS

// ImageBaseURL is where card images are published; the bot sends them as
// photo URLs so the binary does not carry the images themselves.
const ImageBaseURL = "https://raw.githubusercontent.com/netebla/Milky_Tarot/main/src/data/images"

// Card is a single tarot card with its user-facing description.
type Card struct {
	Title       string
	Description string
}

// ImageURL returns the published image location for the card. Titles map to
// filenames with spaces replaced by underscores.
func (c Card) ImageURL() string {
	normalized := strings.ReplaceAll(strings.TrimSpace(c.Title), " ", "_")
	return fmt.Sprintf("%s/%s.jpg", ImageBaseURL, normalized)
}

var (
	loadOnce sync.Once
	loadErr  error

	dayDeck    []Card
	adviceDeck []Card
	archetypes map[string]string
	meanings   map[string]string
)

func load() {
	loadOnce.Do(func() {
		if dayDeck, loadErr = readDeck("data/cards.csv"); loadErr != nil {
			return
		}
		if adviceDeck, loadErr = readDeck("data/cards_advice.csv"); loadErr != nil {
			return
		}
		if archetypes, loadErr = readKeyed("data/year_energy_archetypes.csv"); loadErr != nil {
			return
		}
		meanings, loadErr = readMeanings("data/rag_cards.csv")
	})
}

// DayDeck returns the card-of-the-day deck.
func DayDeck() ([]Card, error) {
	load()
	return dayDeck, loadErr
}

// AdviceDeck returns the advice deck.
func AdviceDeck() ([]Card, error) {
	load()
	return adviceDeck, loadErr
}

// Archetypes returns the year-energy interpretation per card title.
func Archetypes() (map[string]string, error) {
	load()
	return archetypes, loadErr
}

// Meanings returns the extended per-card meanings used to enrich LLM prompts.
func Meanings() (map[string]string, error) {
	load()
	return meanings, loadErr
}

// Find returns the card with the given title, or false when the title is not
// in the deck.
func Find(deck []Card, title string) (Card, bool) {
	for _, c := range deck {
		if c.Title == title {
			return c, true
		}
	}
	return Card{}, false
}

// Titles extracts the title list of a deck, preserving order.
func Titles(deck []Card) []string {
	out := make([]string, len(deck))
	for i, c := range deck {
		out[i] = c.Title
	}
	return out
}

// readDeck parses a headerless semicolon-separated title;description file.
func readDeck(name string) ([]Card, error) {
	f, err := dataFS.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var deck []Card
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if len(row) < 2 {
			continue
		}
		title := cleanTitle(row[0])
		description := strings.TrimSpace(row[1])
		if title == "" || description == "" {
			continue
		}
		deck = append(deck, Card{Title: title, Description: description})
	}
	if len(deck) == 0 {
		return nil, fmt.Errorf("%s: no valid records", name)
	}
	return deck, nil
}

// readKeyed parses a comma-separated file with a card_name,description header.
func readKeyed(name string) (map[string]string, error) {
	f, err := dataFS.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	out := make(map[string]string)
	for i, row := range rows {
		if i == 0 {
			// header
			continue
		}
		if len(row) < 2 {
			continue
		}
		title := cleanTitle(row[0])
		description := strings.TrimSpace(row[1])
		if title != "" && description != "" {
			out[title] = description
		}
	}
	return out, nil
}

// readMeanings parses the headerless semicolon-separated meanings file. A
// missing or empty file is not an error: prompts simply go out without the
// extra context.
func readMeanings(name string) (map[string]string, error) {
	f, err := dataFS.Open(name)
	if err != nil {
		return map[string]string{}, nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	out := make(map[string]string)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if len(row) < 2 {
			continue
		}
		title := cleanTitle(row[0])
		meaning := strings.TrimSpace(row[1])
		if title != "" && meaning != "" {
			out[title] = meaning
		}
	}
	return out, nil
}

// cleanTitle trims whitespace and a possible BOM left over from spreadsheet
// exports.
func cleanTitle(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, "﻿", ""))
}
