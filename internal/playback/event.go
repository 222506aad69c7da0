package playback

import (
	"time"

	"roundtable/internal/models"
)

type EventKind int

const (
	// EventStatus carries a new session status line.
	EventStatus EventKind = iota
	// EventPlaying reports the playing flag flipping.
	EventPlaying
	EventTopic
	EventThinking
	EventSpeaking
	EventDelivered
	// EventTranscript carries the full transcript after a round.
	EventTranscript
	// EventFailed carries the user-visible failure notice.
	EventFailed
)

const (
	StatusIdle       = "idle"
	StatusConnecting = "connecting…"
	StatusError      = "error"

	IndicatorSpeaking  = "Speaking…"
	IndicatorDelivered = "Delivered"
)

// Event is one observable change of a Session.
type Event struct {
	Kind    EventKind
	TableID string

	Status  string
	Playing bool
	Topic   string

	// message events
	Index     int
	Speaker   models.Participant
	Indicator string
	Delay     time.Duration
	Partial   string
	Entry     models.TranscriptEntry

	Transcript []models.TranscriptEntry
	Notice     string
	Err        error
}

// Sink receives events on the session goroutine; it must not block for long.
type Sink func(Event)
