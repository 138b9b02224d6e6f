package chat

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/zhouzirui/spirit/backend/internal/service/ai"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyInput           = errors.New("message text is required")
	ErrTurnInProgress       = errors.New("a turn is already in progress for this conversation")
	ErrPersonaChanged       = errors.New("persona changed while the request was in flight")
	ErrEmptyTranscript      = errors.New("nothing to summarize yet")
	ErrProviderRequired     = errors.New("chat provider is required")
)

// SessionInitError reports a failed attempt to open the remote chat session. The
// conversation stays without a handle; the next ensure or submit tries again.
type SessionInitError struct {
	Provider string
	Kind     ai.Kind
	Err      error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("create %s chat session: %v", e.Provider, e.Err)
}

func (e *SessionInitError) Unwrap() error { return e.Err }

// TurnError reports a provider failure during Submit. The user message stays in the
// transcript and the session handle remains usable.
type TurnError struct {
	Kind ai.Kind
	Err  error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("chat turn failed (%s): %v", e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// SummaryError reports a failed summary; the transcript is untouched.
type SummaryError struct {
	Err error
}

func (e *SummaryError) Error() string {
	return fmt.Sprintf("summarize conversation: %v", e.Err)
}

func (e *SummaryError) Unwrap() error { return e.Err }

// SynthesisError is surfaced as a warning next to a successful turn.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize reply audio: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
