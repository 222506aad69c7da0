package models

import "time"

// TranscriptEntry is one delivered message. Entries are created after the
// message finished playing and are never mutated afterwards.
type TranscriptEntry struct {
	SpeakerLabel  string    `json:"speaker"`
	SpeakerHandle string    `json:"handle,omitempty"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"createdAt"`
}
