package domain

import (
	"time"

	"github.com/conorfennell/examprep/internal/sm2"
)

// Card is a single question-answer-context flashcard.
type Card struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Context  string `json:"context,omitempty"`
}

// ScheduledCard is a card together with its current schedule.
type ScheduledCard struct {
	Card
	CreatedAt time.Time `json:"created_at"`
	Schedule  sm2.State `json:"schedule"`
}

// ReviewLog records a single review event and the schedule it produced.
type ReviewLog struct {
	ID         string      `json:"id"`
	CardID     string      `json:"card_id"`
	Quality    sm2.Quality `json:"quality"`
	ReviewedAt time.Time   `json:"reviewed_at"`
	Result     sm2.State   `json:"result"`
}

// DeckStats summarizes the review queue.
type DeckStats struct {
	Total      int `json:"total"`
	New        int `json:"new"`
	InProgress int `json:"in_progress"`
	Due        int `json:"due"`
}
