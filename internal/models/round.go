package models

import "time"

// RoundRequest is the body of a generation call.
type RoundRequest struct {
	TableID      string            `json:"tableId"`
	TableName    string            `json:"tableName"`
	Theme        string            `json:"theme"`
	Participants []Participant     `json:"participants"`
	History      []TranscriptEntry `json:"history"`
}

// RawRoundMessage mirrors one provider message before validation.
// A nil field means the value was absent or had the wrong type.
type RawRoundMessage struct {
	Speaker          *string
	Content          *string
	ThinkingDelay    *float64
	SpeakingSpeedWPM *float64
}

// RawRound is the untrusted provider payload.
type RawRound struct {
	Topic    *string
	Messages []RawRoundMessage
}

// RoundMessage is a sanitized message, safe to animate.
type RoundMessage struct {
	Speaker          string  `json:"speaker"`
	Content          string  `json:"content"`
	ThinkingDelay    float64 `json:"thinking_delay"`
	SpeakingSpeedWPM float64 `json:"speaking_speed_wpm"`
}

// Round is the sanitized payload served to clients.
type Round struct {
	Topic    string         `json:"topic"`
	Messages []RoundMessage `json:"messages"`
}

// RoundRecord is one generation attempt in the round log. It never carries
// dialogue, only outcome metadata.
type RoundRecord struct {
	ID           string    `json:"id"`
	TableID      string    `json:"table_id"`
	Topic        string    `json:"topic"`
	MessageCount int       `json:"message_count"`
	Outcome      string    `json:"outcome"`
	Status       int       `json:"status"`
	LatencyMS    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
