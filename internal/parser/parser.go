// Package parser reads flashcard decks written as markdown.
//
// A card starts at a "Q:" line and may carry "A:" and "C:" (context) blocks.
// Blocks continue over following lines until the next prefix, a "---"
// separator, or the next "Q:".
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/examprep/internal/domain"
)

const separator = "---"

// MaxLineBytes is the longest line a deck may contain.
const MaxLineBytes = 1 << 20

type field int

const (
	none field = iota
	questionField
	answerField
	contextField
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", questionField},
	{"A:", answerField},
	{"C:", contextField},
}

// ParseFile reads the deck at path.
func ParseFile(path string) ([]domain.Card, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cards, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cards, nil
}

type deckReader struct {
	cards   []domain.Card
	card    domain.Card
	current field
	block   []string
}

// flushBlock stores the lines collected so far into the field being read.
func (d *deckReader) flushBlock() {
	if d.current == none {
		return
	}
	// Blank lines between cards belong to neither.
	end := len(d.block)
	for end > 0 && strings.TrimSpace(d.block[end-1]) == "" {
		end--
	}
	content := strings.Join(d.block[:end], "\n")
	switch d.current {
	case questionField:
		d.card.Question = content
	case answerField:
		d.card.Answer = content
	case contextField:
		d.card.Context = content
	}
	d.block = nil
}

func (d *deckReader) finishCard() {
	d.flushBlock()
	if d.card.Question != "" {
		d.cards = append(d.cards, d.card)
	}
	d.card = domain.Card{}
	d.current = none
}

func (d *deckReader) line(line string) {
	if line == separator {
		d.finishCard()
		return
	}
	for _, p := range prefixes {
		if !strings.HasPrefix(line, p.prefix) {
			continue
		}
		if p.field == questionField && d.current != none {
			d.finishCard()
		}
		d.flushBlock()
		d.current = p.field
		d.block = append(d.block, strings.TrimPrefix(line[len(p.prefix):], " "))
		return
	}
	if d.current != none {
		d.block = append(d.block, line)
	}
}

// Parse extracts every card from r. Text outside of a card is ignored.
func Parse(r io.Reader) ([]domain.Card, error) {
	var d deckReader
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), MaxLineBytes)
	for scanner.Scan() {
		d.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	d.finishCard()
	return d.cards, nil
}
