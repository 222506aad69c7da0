package main

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"roundtable/internal/directory"
	"roundtable/internal/models"
	"roundtable/internal/mylog"
	"roundtable/internal/playback"
)

// instantClock never waits, so a round plays out as fast as events are drained.
type instantClock struct{}

func (instantClock) Now() time.Time { return time.Now() }

func (instantClock) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func (instantClock) AfterFunc(d time.Duration, f func()) playback.Timer {
	return time.AfterFunc(d, f)
}

type fakeClient struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
	round models.Round
	err   error
}

func (c *fakeClient) RequestRound(ctx context.Context, req models.RoundRequest) (models.Round, error) {
	c.mu.Lock()
	c.calls++
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Round{}, ctx.Err()
		}
	}
	return c.round, c.err
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testModel(t *testing.T, client playback.RoundClient, slug string) model {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m := newModel(ctx, directory.MustDefault(), client, instantClock{}, slug, mylog.Discard())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 200})
	return next.(model)
}

func press(t *testing.T, m model, k string) model {
	t.Helper()
	next, _ := m.Update(key(k))
	return next.(model)
}

// drainUntil feeds session events back into the model until stop matches.
func drainUntil(t *testing.T, m model, stop func(playback.Event) bool) model {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-m.events:
			next, _ := m.Update(eventMsg(ev))
			m = next.(model)
			if stop(ev) {
				return m
			}
		case <-timeout:
			t.Fatalf("timed out waiting for session events")
		}
	}
}

func roundEnded(ev playback.Event) bool {
	return ev.Kind == playback.EventPlaying && !ev.Playing
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 59, 0, time.Local)
	if got := formatTimestamp(ts); got != "07:05" {
		t.Fatalf("expected 07:05, got %q", got)
	}
}

func TestRenderTranscriptEmptyState(t *testing.T) {
	out := renderTranscript(newTheme(), nil, nil, 80)
	if !strings.Contains(out, emptyStateText) {
		t.Fatalf("expected empty state, got %q", out)
	}
}

func TestRenderTranscriptCards(t *testing.T) {
	entries := []models.TranscriptEntry{{
		SpeakerLabel:  "Ada Lovelace",
		SpeakerHandle: "a.lovelace",
		Content:       "Engines weave algebra.",
		CreatedAt:     time.Date(2024, 3, 9, 18, 42, 0, 0, time.Local),
	}}
	live := &liveMessage{speaker: models.Participant{Label: "Alan Turing"}, indicator: playback.IndicatorSpeaking, text: "Machines"}

	out := renderTranscript(newTheme(), entries, live, 80)
	for _, want := range []string{"Ada Lovelace", "18:42", "Engines weave algebra.", playback.IndicatorDelivered, "Alan Turing", playback.IndicatorSpeaking, "Machines"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in transcript:\n%s", want, out)
		}
	}
	if strings.Contains(out, emptyStateText) {
		t.Fatalf("empty state should be hidden once messages exist")
	}
}

func TestModelResolvesTableSlug(t *testing.T) {
	tables := directory.MustDefault().Tables()
	m := testModel(t, &fakeClient{}, strings.ToUpper(tables[1].ID))
	if got, ok := m.current(); !ok || got.ID != tables[1].ID {
		t.Fatalf("expected table %s, got %+v", tables[1].ID, got)
	}

	m = testModel(t, &fakeClient{}, "")
	if got, _ := m.current(); got.ID != tables[0].ID {
		t.Fatalf("expected first table by default, got %s", got.ID)
	}
}

func TestModelMissingTableDisablesGeneration(t *testing.T) {
	client := &fakeClient{}
	m := testModel(t, client, "atlantis")
	if !strings.Contains(m.View(), notFoundText) {
		t.Fatalf("expected not found view, got:\n%s", m.View())
	}

	m = press(t, m, "g")
	if m.notice != notFoundText {
		t.Fatalf("expected not found notice, got %q", m.notice)
	}
	if client.callCount() != 0 {
		t.Fatalf("generation must not reach the server for a missing table")
	}

	m = press(t, m, "tab")
	if _, ok := m.current(); !ok {
		t.Fatalf("tab should move into the directory")
	}
}

func TestModelPlaysRound(t *testing.T) {
	client := &fakeClient{round: models.Round{
		Topic: "Engines of thought",
		Messages: []models.RoundMessage{
			{Speaker: "a.leary", Content: "Set and setting.", ThinkingDelay: 0.4, SpeakingSpeedWPM: 200},
			{Speaker: "Aldous Huxley", Content: "Doors open.", ThinkingDelay: 0.4, SpeakingSpeedWPM: 200},
		},
	}}
	m := testModel(t, client, "doors-of-perception")

	if !strings.Contains(m.View(), emptyStateText) {
		t.Fatalf("expected empty state before the first round")
	}

	m = press(t, m, "g")
	m = drainUntil(t, m, roundEnded)

	view := m.View()
	for _, want := range []string{"Timothy Leary", "Set and setting.", "Aldous Huxley", "Doors open.", "Topic: Engines of thought"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view:\n%s", want, view)
		}
	}
	if len(m.live) != 0 {
		t.Fatalf("live card should be cleared after the round, got %+v", m.live)
	}
	if got := len(m.sessions["doors-of-perception"].Transcript()); got != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", got)
	}
}

func TestModelRefusesSwitchWhilePlaying(t *testing.T) {
	client := &fakeClient{gate: make(chan struct{})}
	m := testModel(t, client, "")
	first, _ := m.current()

	m = press(t, m, "enter")
	m = press(t, m, "tab")
	if got, _ := m.current(); got.ID != first.ID {
		t.Fatalf("table switched while playing")
	}
	if m.notice != switchRefused {
		t.Fatalf("expected switch refusal, got %q", m.notice)
	}

	m = press(t, m, "g")
	if m.notice != alreadyPlaying {
		t.Fatalf("expected already playing notice, got %q", m.notice)
	}

	close(client.gate)
	m = drainUntil(t, m, roundEnded)
	if client.callCount() != 1 {
		t.Fatalf("expected a single request, got %d", client.callCount())
	}

	m = press(t, m, "tab")
	if got, _ := m.current(); got.ID == first.ID {
		t.Fatalf("expected switch once the round finished")
	}
}

func TestModelShowsFailureNotice(t *testing.T) {
	client := &fakeClient{err: &playback.APIError{Status: 503, Message: "upstream overloaded"}}
	m := testModel(t, client, "")

	m = press(t, m, "g")
	m = drainUntil(t, m, roundEnded)

	view := m.View()
	if !strings.Contains(view, "upstream overloaded") {
		t.Fatalf("expected failure notice in view:\n%s", view)
	}
	if !strings.Contains(view, playback.StatusError) {
		t.Fatalf("expected error status in view:\n%s", view)
	}

	client.err = nil
	client.round = models.Round{Topic: "retry"}
	m = press(t, m, "g")
	m = drainUntil(t, m, roundEnded)
	if strings.Contains(m.View(), "upstream overloaded") {
		t.Fatalf("failure notice should clear when a new round starts")
	}
}
