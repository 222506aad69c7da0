package round

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"roundtable/internal/models"
)

// ParsePayload is the schema-checked stage: it accepts any JSON text and
// reports malformed input or a missing messages array as typed errors. Fields
// with the wrong JSON type are left nil for the sanitizer to default.
func ParsePayload(content string) (models.RawRound, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.RawRound{}, EmptyResponseError()
	}
	if !gjson.Valid(content) {
		return models.RawRound{}, MalformedJSONError(errors.New("content is not valid JSON"))
	}

	root := gjson.Parse(content)
	messages := root.Get("messages")
	if !root.IsObject() || !messages.IsArray() {
		return models.RawRound{}, InvalidShapeError()
	}

	raw := models.RawRound{Topic: stringField(root, "topic")}
	for _, item := range messages.Array() {
		raw.Messages = append(raw.Messages, models.RawRoundMessage{
			Speaker:          stringField(item, "speaker"),
			Content:          stringField(item, "content"),
			ThinkingDelay:    numberField(item, "thinking_delay"),
			SpeakingSpeedWPM: numberField(item, "speaking_speed_wpm"),
		})
	}
	if raw.Messages == nil {
		raw.Messages = []models.RawRoundMessage{}
	}
	return raw, nil
}

func stringField(obj gjson.Result, key string) *string {
	if !obj.IsObject() {
		return nil
	}
	v := obj.Get(key)
	if v.Type != gjson.String {
		return nil
	}
	s := v.String()
	return &s
}

func numberField(obj gjson.Result, key string) *float64 {
	if !obj.IsObject() {
		return nil
	}
	v := obj.Get(key)
	if v.Type != gjson.Number {
		return nil
	}
	f := v.Float()
	return &f
}
