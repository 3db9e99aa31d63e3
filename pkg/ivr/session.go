package ivr

import (
	"context"
	"errors"
	"time"
)

// State is where a call stands in the voice menu
type State string

const (
	StateAwaitingIntro      State = "awaiting_intro"
	StateAwaitingLanguage   State = "awaiting_language"
	StateAwaitingMenuChoice State = "awaiting_menu_choice"
	StateTransferring       State = "transferring"
	StateAwaitingRecording  State = "awaiting_recording"
	StateComplete           State = "complete"
)

var stateOrder = map[State]int{
	StateAwaitingIntro:      0,
	StateAwaitingLanguage:   1,
	StateAwaitingMenuChoice: 2,
	StateTransferring:       3,
	StateAwaitingRecording:  4,
	StateComplete:           5,
}

// Valid reports whether s is a known state
func (s State) Valid() bool {
	_, ok := stateOrder[s]
	return ok
}

// Terminal reports whether no further transitions leave s
func (s State) Terminal() bool {
	return s == StateComplete
}

// Language is the language the caller picked
type Language string

const (
	English Language = "english"
	French  Language = "french"
)

// Session is the per-call state
type Session struct {
	CallID    string    `json:"call_id"`
	Caller    string    `json:"caller"`
	Language  Language  `json:"language"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates the session of a fresh call
func NewSession(callID, caller string, now time.Time) *Session {
	return &Session{
		CallID:    callID,
		Caller:    caller,
		Language:  English,
		State:     StateAwaitingIntro,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ErrSessionNotFound is returned by stores for unknown call IDs
var ErrSessionNotFound = errors.New("call session not found")

// SessionStore persists sessions between webhook requests
type SessionStore interface {
	// LoadSession returns ErrSessionNotFound for unknown call IDs
	LoadSession(ctx context.Context, callID string) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
	// ClaimTranscription records key and reports whether this was the
	// first claim. Later claims of the same key return false
	ClaimTranscription(ctx context.Context, key string) (bool, error)
}
