package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"roundtable/internal/config"
	"roundtable/internal/service/round"
)

const maxResponseSize = 512 * 1024

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string             `json:"name"`
	Schema *jsonschema.Schema `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

// openRouter talks to an OpenAI-compatible chat completions endpoint and
// forwards upstream failures with their status and raw body.
type openRouter struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
}

func newOpenRouter(cfg config.ProviderConfig, client *http.Client) *openRouter {
	if client == nil {
		// no client timeout; the caller's context bounds the request
		client = &http.Client{}
	}
	return &openRouter{cfg: cfg, httpClient: client}
}

func (o *openRouter) Complete(ctx context.Context, c round.Completion) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.System},
			{Role: "user", Content: c.User},
		},
		ResponseFormat: responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchemaFormat{Name: c.SchemaName, Schema: c.Schema},
		},
	})
	if err != nil {
		return "", round.UnexpectedError(errors.Wrap(err, "encode completion request"))
	}

	endpoint := strings.TrimRight(o.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", round.UnexpectedError(errors.Wrap(err, "build completion request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	if o.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", o.cfg.Referer)
	}
	if o.cfg.AppTitle != "" {
		req.Header.Set("X-Title", o.cfg.AppTitle)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", round.UnexpectedError(errors.Wrap(err, "call completion provider"))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", round.UnexpectedError(errors.Wrap(err, "read completion response"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", round.ProviderError(resp.StatusCode, string(data))
	}
	return messageContent(data)
}

// messageContent extracts choices[0].message.content. A string is returned
// as-is; an object or array is returned as its raw JSON.
func messageContent(envelope []byte) (string, error) {
	if !gjson.ValidBytes(envelope) {
		return "", round.MalformedJSONError(errors.New("completion envelope is not JSON"))
	}
	content := gjson.GetBytes(envelope, "choices.0.message.content")
	switch {
	case content.Type == gjson.String:
		if strings.TrimSpace(content.Str) == "" {
			return "", round.EmptyResponseError()
		}
		return content.Str, nil
	case content.IsObject(), content.IsArray():
		return content.Raw, nil
	default:
		return "", round.EmptyResponseError()
	}
}
