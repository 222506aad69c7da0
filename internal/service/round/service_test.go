package round

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable/internal/mylog"
)

type stubProvider struct {
	content string
	err     error
	calls   int
	last    Completion
}

func (p *stubProvider) Complete(_ context.Context, req Completion) (string, error) {
	p.calls++
	p.last = req
	return p.content, p.err
}

func TestGenerateSanitizesProviderPayload(t *testing.T) {
	provider := &stubProvider{content: `{"topic":"","messages":[
		{"speaker":"a.tesla","content":"Power without wires.","thinking_delay":-5,"speaking_speed_wpm":9999},
		{"speaker":"a.curie","content":"Show me the measurements.","thinking_delay":2,"speaking_speed_wpm":150}
	]}`}
	svc := NewService(provider, mylog.Discard())

	round, err := svc.Generate(context.Background(), scienceLab())
	require.NoError(t, err)

	assert.Equal(t, "Physics, energy systems, and speculative prototypes", round.Topic)
	require.Len(t, round.Messages, 2)
	assert.Equal(t, 0.4, round.Messages[0].ThinkingDelay)
	assert.Equal(t, 200.0, round.Messages[0].SpeakingSpeedWPM)
	assert.Equal(t, "a.curie", round.Messages[1].Speaker)

	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, SchemaName, provider.last.SchemaName)
	assert.Contains(t, provider.last.User, "Nikola Tesla (a.tesla)")
	assert.NotEmpty(t, provider.last.System)
}

func TestGenerateWithoutProvider(t *testing.T) {
	_, err := NewService(nil, nil).Generate(context.Background(), scienceLab())
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, AsError(err).HTTPStatus())
}

func TestGenerateMissingMetadata(t *testing.T) {
	provider := &stubProvider{}
	svc := NewService(provider, mylog.Discard())

	req := scienceLab()
	req.Participants = nil
	_, err := svc.Generate(context.Background(), req)
	assert.Equal(t, KindMissingMetadata, KindOf(err))

	req = scienceLab()
	req.TableID = ""
	_, err = svc.Generate(context.Background(), req)
	assert.Equal(t, KindMissingMetadata, KindOf(err))
	assert.Equal(t, http.StatusBadRequest, AsError(err).HTTPStatus())
	assert.Zero(t, provider.calls)
}

func TestGenerateForwardsProviderStatus(t *testing.T) {
	provider := &stubProvider{err: ProviderError(http.StatusServiceUnavailable, `{"error":"overloaded"}`)}
	_, err := NewService(provider, mylog.Discard()).Generate(context.Background(), scienceLab())

	rerr := AsError(err)
	assert.Equal(t, KindProvider, rerr.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, rerr.HTTPStatus())
	assert.Equal(t, `{"error":"overloaded"}`, rerr.Details)
}

func TestGenerateUntypedProviderError(t *testing.T) {
	provider := &stubProvider{err: errors.New("socket closed")}
	_, err := NewService(provider, mylog.Discard()).Generate(context.Background(), scienceLab())
	assert.Equal(t, KindUnexpected, KindOf(err))
}

func TestGenerateRejectsBadPayloads(t *testing.T) {
	cases := map[string]struct {
		content string
		kind    Kind
		status  int
	}{
		"empty":     {"", KindEmptyResponse, http.StatusBadGateway},
		"prose":     {"Here you go!", KindMalformedJSON, http.StatusBadGateway},
		"no array":  {`{"topic":"x"}`, KindInvalidShape, http.StatusUnprocessableEntity},
		"array obj": {`{"messages":"nope"}`, KindInvalidShape, http.StatusUnprocessableEntity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := NewService(&stubProvider{content: tc.content}, mylog.Discard())
			_, err := svc.Generate(context.Background(), scienceLab())
			require.Error(t, err)
			assert.Equal(t, tc.kind, KindOf(err))
			assert.Equal(t, tc.status, AsError(err).HTTPStatus())
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "completion provider request failed (status 503)", ProviderError(503, "").Error())
	assert.Equal(t, "unexpected server error: boom", UnexpectedError(errors.New("boom")).Error())
	assert.Nil(t, AsError(nil))
	assert.Equal(t, Kind(""), KindOf(nil))
}
