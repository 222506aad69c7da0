package round

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"roundtable/internal/models"
	"roundtable/internal/transcript"
)

const (
	// HistoryWindow bounds how many delivered messages are sent upstream.
	HistoryWindow = 15
	SchemaName    = "RoundtableRound"
	MaxWords      = 120

	systemPrompt = "You orchestrate Faculty Club roundtable salons. Always follow the JSON schema exactly. Do not include commentary outside of JSON."
)

var (
	//go:embed prompt.tmpl
	roundPrompt     string
	roundPromptTmpl = template.Must(template.New("round").Funcs(sprig.TxtFuncMap()).Parse(roundPrompt))
)

type promptValues struct {
	TableName    string
	Theme        string
	Participants []models.Participant
	History      []models.TranscriptEntry
	MaxWords     int
	DelayRange   string
	SpeedRange   string
}

// TrailingHistory keeps the most recent HistoryWindow entries.
func TrailingHistory(history []models.TranscriptEntry) []models.TranscriptEntry {
	return transcript.Tail(history, HistoryWindow)
}

// RenderPrompt renders the user instruction block for one round.
func RenderPrompt(req models.RoundRequest) (string, error) {
	var buf bytes.Buffer
	err := roundPromptTmpl.Execute(&buf, promptValues{
		TableName:    req.TableName,
		Theme:        req.Theme,
		Participants: req.Participants,
		History:      TrailingHistory(req.History),
		MaxWords:     MaxWords,
		DelayRange:   "0.5-3.5",
		SpeedRange:   "110-190",
	})
	if err != nil {
		return "", errors.Wrap(err, "render round prompt")
	}
	return strings.TrimSpace(buf.String()), nil
}

type schemaMessage struct {
	Speaker          string  `json:"speaker" jsonschema_description:"Handle or name of the participant."`
	Content          string  `json:"content" jsonschema_description:"The text of the response."`
	ThinkingDelay    float64 `json:"thinking_delay" jsonschema_description:"Seconds to wait before the speaker starts talking."`
	SpeakingSpeedWPM float64 `json:"speaking_speed_wpm" jsonschema_description:"Approximate words per minute for the speaker."`
}

type schemaRound struct {
	Topic    string          `json:"topic" jsonschema_description:"Concise suggestion for the next angle of conversation."`
	Messages []schemaMessage `json:"messages"`
}

// ResponseSchema describes the structure the model must return: a topic and
// exactly participants messages.
func ResponseSchema(participants int) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	s := r.Reflect(&schemaRound{})
	s.Version = ""
	if msgs, ok := s.Properties.Get("messages"); ok && msgs != nil {
		n := uint64(participants)
		msgs.MinItems = &n
		msgs.MaxItems = &n
	}
	return s
}
