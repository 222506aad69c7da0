package round

import (
	"math"

	"github.com/samber/lo"

	"roundtable/internal/models"
)

const (
	MinThinkingDelay     = 0.4
	MaxThinkingDelay     = 4.0
	DefaultThinkingDelay = 1.2
	MinSpeakingSpeed     = 100.0
	MaxSpeakingSpeed     = 200.0
	DefaultSpeakingSpeed = 140.0

	UnknownSpeaker = "unknown"
)

// Sanitize turns an untrusted payload into one that is always safe to play.
// It never fails: missing strings get defaults, numbers are clamped.
func Sanitize(raw models.RawRound, theme string) models.Round {
	topic := theme
	if raw.Topic != nil && *raw.Topic != "" {
		topic = *raw.Topic
	}
	return models.Round{
		Topic: topic,
		Messages: lo.Map(raw.Messages, func(msg models.RawRoundMessage, _ int) models.RoundMessage {
			return SanitizeMessage(msg)
		}),
	}
}

func SanitizeMessage(msg models.RawRoundMessage) models.RoundMessage {
	speaker := UnknownSpeaker
	if msg.Speaker != nil && *msg.Speaker != "" {
		speaker = *msg.Speaker
	}
	content := ""
	if msg.Content != nil {
		content = *msg.Content
	}
	return models.RoundMessage{
		Speaker:          speaker,
		Content:          content,
		ThinkingDelay:    ClampNumber(msg.ThinkingDelay, MinThinkingDelay, MaxThinkingDelay, DefaultThinkingDelay),
		SpeakingSpeedWPM: ClampNumber(msg.SpeakingSpeedWPM, MinSpeakingSpeed, MaxSpeakingSpeed, DefaultSpeakingSpeed),
	}
}

// ClampNumber pulls v into [min, max]; absent or NaN values yield fallback.
func ClampNumber(v *float64, min, max, fallback float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return fallback
	}
	return lo.Clamp(*v, min, max)
}
