package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"google.golang.org/genai"

	"roundtable/internal/config"
	"roundtable/internal/service/round"
)

// ErrNoCredential means the selected provider has no API key configured.
var ErrNoCredential = errors.New("provider credential not configured")

// NewProvider builds the completion provider named by the configuration.
// openrouter uses the native HTTP transport; openai, gemini and claude go
// through eino chat models.
func NewProvider(ctx context.Context, name string, cfg config.ProviderConfig) (round.Provider, error) {
	return newProvider(ctx, name, cfg, nil)
}

func newProvider(ctx context.Context, name string, cfg config.ProviderConfig, client *http.Client) (round.Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoCredential
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch strings.ToLower(name) {
	case config.DefaultProvider:
		return newOpenRouter(cfg, client), nil
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "gemini":
		var gc *genai.Client
		gc, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: cfg.APIKey,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create gemini client")
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: gc,
			Model:  cfg.Model,
		})
	case "claude":
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURL,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "init %s chat model", name)
	}
	return &einoProvider{name: name, chatModel: chatModel}, nil
}

// einoProvider adapts an eino chat model. These SDKs hide the upstream
// status, so every failure surfaces as a 502 provider error.
type einoProvider struct {
	name      string
	chatModel model.BaseChatModel
}

func (p *einoProvider) Complete(ctx context.Context, c round.Completion) (string, error) {
	schemaJSON, err := json.Marshal(c.Schema)
	if err != nil {
		return "", round.UnexpectedError(errors.Wrap(err, "encode response schema"))
	}
	system := fmt.Sprintf("%s\n\nJSON schema %q:\n%s", c.System, c.SchemaName, schemaJSON)

	msg, err := p.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(c.User),
	})
	if err != nil {
		return "", round.ProviderError(http.StatusBadGateway, err.Error())
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", round.EmptyResponseError()
	}
	return stripFence(msg.Content), nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
