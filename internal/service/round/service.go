package round

import (
	"context"
	"log/slog"
	"strings"

	"github.com/invopop/jsonschema"

	"roundtable/internal/models"
)

// Completion is one structured-output chat request.
type Completion struct {
	System     string
	User       string
	SchemaName string
	Schema     *jsonschema.Schema
}

// Provider issues a completion and returns the raw message content. Content
// may be a JSON document or a JSON-encoded string; failures should be *Error.
type Provider interface {
	Complete(ctx context.Context, req Completion) (string, error)
}

// Service turns a table snapshot into a sanitized round. It never retries.
type Service struct {
	provider Provider
	logger   *slog.Logger
}

// NewService builds the requester. A nil provider means no credential was
// configured; every Generate call then fails with a configuration error.
func NewService(provider Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, logger: logger}
}

// BuildCompletion validates req and assembles the prompt and schema.
func BuildCompletion(req models.RoundRequest) (Completion, error) {
	if strings.TrimSpace(req.TableID) == "" || len(req.Participants) == 0 {
		return Completion{}, MissingMetadataError()
	}
	user, err := RenderPrompt(req)
	if err != nil {
		return Completion{}, UnexpectedError(err)
	}
	return Completion{
		System:     systemPrompt,
		User:       user,
		SchemaName: SchemaName,
		Schema:     ResponseSchema(len(req.Participants)),
	}, nil
}

// Generate requests one round and sanitizes it.
func (s *Service) Generate(ctx context.Context, req models.RoundRequest) (models.Round, error) {
	if s.provider == nil {
		return models.Round{}, ConfigurationError("completion provider credential is not configured")
	}
	completion, err := BuildCompletion(req)
	if err != nil {
		return models.Round{}, err
	}

	content, err := s.provider.Complete(ctx, completion)
	if err != nil {
		rerr := AsError(err)
		s.logger.Warn("completion failed", "table", req.TableID, "kind", rerr.Kind, "status", rerr.Status)
		return models.Round{}, rerr
	}

	raw, err := ParsePayload(content)
	if err != nil {
		s.logger.Warn("completion payload rejected", "table", req.TableID, "error", err)
		return models.Round{}, err
	}
	round := Sanitize(raw, req.Theme)
	if len(round.Messages) != len(req.Participants) {
		s.logger.Debug("message count differs from roster", "table", req.TableID,
			"messages", len(round.Messages), "participants", len(req.Participants))
	}
	return round, nil
}
