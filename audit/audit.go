// Package audit records the durable, append-only trail of every
// user-impacting action the agent takes on behalf of a paired device.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action identifies the kind of user-impacting event being recorded.
type Action string

const (
	ActionTranscribed Action = "transcribed"
	ActionBlocked     Action = "blocked"
	ActionInjected    Action = "injected"
	ActionConfirmed   Action = "confirmed"
)

// Entry is one audit record. Entries are never mutated or deleted.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Action     Action    `json:"action"`
	Transcript string    `json:"transcript"`
	Details    string    `json:"details"`
}

// NewEntry stamps an entry with a fresh ID and the current UTC time.
func NewEntry(action Action, transcript, details string) Entry {
	return Entry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Action:     action,
		Transcript: transcript,
		Details:    details,
	}
}

// Sink is a durable append-only destination for audit entries.
type Sink interface {
	// Append persists one entry.
	Append(entry Entry) error
	// List returns all entries in append order.
	List() ([]Entry, error)
}
