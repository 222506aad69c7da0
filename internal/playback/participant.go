package playback

import (
	"strings"

	"github.com/samber/lo"

	"roundtable/internal/models"
)

// ResolveParticipant maps a speaker token to a seated participant: exact
// handle first, then case-insensitive label. Unknown tokens become an
// ad-hoc guest named after the token.
func ResolveParticipant(participants []models.Participant, token string) models.Participant {
	if p, ok := lo.Find(participants, func(p models.Participant) bool {
		return p.Handle == token
	}); ok {
		return p
	}
	if p, ok := lo.Find(participants, func(p models.Participant) bool {
		return strings.EqualFold(p.Label, token)
	}); ok {
		return p
	}
	if token == "" {
		return models.Participant{Handle: "guest", Label: "Guest"}
	}
	return models.Participant{Handle: token, Label: token}
}
