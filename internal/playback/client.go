package playback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"roundtable/internal/models"
	"roundtable/internal/service/round"
)

const fallbackFailure = "round request failed"

// RoundClient requests one sanitized round for a table snapshot.
type RoundClient interface {
	RequestRound(ctx context.Context, req models.RoundRequest) (models.Round, error)
}

// APIError is a non-2xx answer from the round server.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// FailureNotice is the text shown to the user for err.
func FailureNotice(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err == nil || err.Error() == "" {
		return fallbackFailure
	}
	return err.Error()
}

// HTTPClient posts to a round server's /api/generate.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

// RequestRound sends the full history; the server trims it. The response is
// parsed and sanitized again so out-of-range values never reach playback.
func (c *HTTPClient) RequestRound(ctx context.Context, req models.RoundRequest) (models.Round, error) {
	if req.History == nil {
		req.History = []models.TranscriptEntry{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return models.Round{}, errors.Wrap(err, "encode round request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return models.Round{}, errors.Wrap(err, "build round request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return models.Round{}, errors.Wrap(err, "send round request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Round{}, errors.Wrap(err, "read round response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Round{}, decodeAPIError(resp.StatusCode, data)
	}

	raw, err := round.ParsePayload(string(data))
	if err != nil {
		return models.Round{}, err
	}
	return round.Sanitize(raw, req.Theme), nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: fallbackFailure}
	if !gjson.ValidBytes(body) {
		return apiErr
	}
	if msg := gjson.GetBytes(body, "error"); msg.Type == gjson.String && msg.Str != "" {
		apiErr.Message = msg.Str
	}
	if details := gjson.GetBytes(body, "details"); details.Exists() {
		if details.Type == gjson.String {
			apiErr.Details = details.Str
		} else {
			apiErr.Details = details.Raw
		}
	}
	return apiErr
}
