// Package domain contains core domain types for the document Q&A client.
package domain

import (
	"time"
)

const (
	// PlaceholderAnswer is shown while a question is in flight.
	PlaceholderAnswer = "Thinking..."
	// NoAnswerText is used when the backend replies with neither an answer nor an error.
	NoAnswerText = "No answer received"
	// ErrorAnswerPrefix prefixes answers of turns whose request failed.
	ErrorAnswerPrefix = "Error: "
	// InterruptedAnswer replaces the placeholder of a turn whose request was lost with its server.
	InterruptedAnswer = ErrorAnswerPrefix + "the server restarted before an answer arrived"
)

// TurnStatus tracks the lifecycle of a conversation turn.
type TurnStatus string

const (
	// TurnPending is the state of a freshly submitted turn.
	TurnPending TurnStatus = "pending"
	// TurnAnswered means the backend replied.
	TurnAnswered TurnStatus = "answered"
	// TurnFailed means the request never produced a usable reply.
	TurnFailed TurnStatus = "failed"
)

// Turn is one question/answer pair of the conversation.
type Turn struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Status     TurnStatus `json:"status"`
	AskedAt    time.Time  `json:"asked_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// NewTurn creates a pending turn carrying the placeholder answer.
func NewTurn(id, question string, now time.Time) Turn {
	return Turn{
		ID:       id,
		Question: question,
		Answer:   PlaceholderAnswer,
		Status:   TurnPending,
		AskedAt:  now,
	}
}

// IsPending returns true while the turn is waiting for the backend.
func (t Turn) IsPending() bool {
	return t.Status == TurnPending
}

// SelectedFile describes the locally chosen file. The bytes are kept by the store.
type SelectedFile struct {
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	SelectedAt  time.Time `json:"selected_at"`
}
