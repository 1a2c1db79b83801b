// Package cardkey derives stable card identifiers from card content.
package cardkey

import (
	"strings"

	"github.com/conorfennell/examprep/internal/domain"
	"github.com/google/uuid"
)

// Namespace scopes the name-based UUIDs generated for cards.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/conorfennell/examprep/cards"))

// Normalize lowercases, trims and unifies line endings of each field, then
// joins question, answer and context with newlines so fields cannot run together.
func Normalize(card domain.Card) string {
	clean := func(part string) string {
		p := strings.ReplaceAll(part, "\r\n", "\n")
		return strings.TrimSpace(strings.ToLower(p))
	}
	return strings.Join([]string{clean(card.Question), clean(card.Answer), clean(card.Context)}, "\n")
}

// Key returns the name-based (version 5) UUID of the normalized card.
// Cards that normalize identically share a key, so editing whitespace or
// case in a deck does not reset a card's schedule.
func Key(card domain.Card) string {
	return uuid.NewSHA1(Namespace, []byte(Normalize(card))).String()
}
