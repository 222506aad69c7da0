package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"roundtable/internal/directory"
	"roundtable/internal/models"
	"roundtable/internal/playback"
)

const (
	emptyStateText   = "No conversation yet."
	emptyStateHint   = "Press g to seat the faculty; their replies appear here with a typewriter reveal."
	notFoundText     = "Table not found"
	switchRefused    = "Finish the current round before switching tables."
	alreadyPlaying   = "A round is already playing at this table."
	eventBufferSize  = 256
	timestampLayout  = "15:04"
	minViewportLines = 3
)

type eventMsg playback.Event

type theme struct {
	title    lipgloss.Style
	subtle   lipgloss.Style
	accent   lipgloss.Style
	speaker  lipgloss.Style
	body     lipgloss.Style
	notice   lipgloss.Style
	status   lipgloss.Style
	card     lipgloss.Style
	liveCard lipgloss.Style
}

func newTheme() theme {
	return theme{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")),
		subtle:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		accent:   lipgloss.NewStyle().Foreground(lipgloss.Color("179")),
		speaker:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("117")),
		body:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		notice:   lipgloss.NewStyle().Foreground(lipgloss.Color("204")),
		status:   lipgloss.NewStyle().Foreground(lipgloss.Color("150")),
		card:     lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderLeft(true).BorderForeground(lipgloss.Color("240")).PaddingLeft(1),
		liveCard: lipgloss.NewStyle().BorderStyle(lipgloss.ThickBorder()).BorderLeft(true).BorderForeground(lipgloss.Color("179")).PaddingLeft(1),
	}
}

// liveMessage is the card currently thinking or being typed.
type liveMessage struct {
	speaker   models.Participant
	indicator string
	text      string
}

type model struct {
	ctx    context.Context
	client playback.RoundClient
	clock  playback.Clock
	logger *slog.Logger

	tables  []models.Table
	active  int
	missing string

	sessions map[string]*playback.Session
	live     map[string]*liveMessage
	failures map[string]string
	events   chan playback.Event

	notice   string
	viewport viewport.Model
	spinner  spinner.Model
	theme    theme
	width    int
	height   int
}

func newModel(ctx context.Context, dir *directory.Directory, client playback.RoundClient, clock playback.Clock, slug string, logger *slog.Logger) model {
	sp := spinner.New()
	sp.Spinner = spinner.Points

	vp := viewport.New(0, 0)
	vp.MouseWheelEnabled = true

	m := model{
		ctx:      ctx,
		client:   client,
		clock:    clock,
		logger:   logger,
		tables:   dir.Tables(),
		sessions: make(map[string]*playback.Session),
		live:     make(map[string]*liveMessage),
		failures: make(map[string]string),
		events:   make(chan playback.Event, eventBufferSize),
		viewport: vp,
		spinner:  sp,
		theme:    newTheme(),
	}

	if slug != "" {
		t, err := dir.Resolve(slug)
		if err != nil {
			m.active = -1
			m.missing = slug
		} else {
			_, m.active, _ = lo.FindIndexOf(m.tables, func(c models.Table) bool { return c.ID == t.ID })
		}
	}
	if len(m.tables) == 0 {
		m.active = -1
	}
	m.refresh()
	return m
}

func waitEvent(ch <-chan playback.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitEvent(m.events))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(playback.Event(msg))
		return m, waitEvent(m.events)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "g", "enter":
			m.generate()
			return m, nil
		case "tab", "right", "l":
			m.switchTable(1)
			return m, nil
		case "shift+tab", "left", "h":
			m.switchTable(-1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) current() (models.Table, bool) {
	if m.active < 0 || m.active >= len(m.tables) {
		return models.Table{}, false
	}
	return m.tables[m.active], true
}

func (m *model) session(t models.Table) *playback.Session {
	if s, ok := m.sessions[t.ID]; ok {
		return s
	}
	events := m.events
	s := playback.NewSession(t, m.client,
		playback.WithClock(m.clock),
		playback.WithLogger(m.logger),
		playback.WithSink(func(ev playback.Event) { events <- ev }),
	)
	m.sessions[t.ID] = s
	return s
}

func (m *model) generate() {
	t, ok := m.current()
	if !ok {
		m.notice = notFoundText
		return
	}
	if !m.session(t).Trigger(m.ctx) {
		m.notice = alreadyPlaying
		return
	}
	m.notice = ""
	m.logger.Debug("round requested", "table", t.ID)
}

func (m *model) switchTable(delta int) {
	if len(m.tables) == 0 {
		return
	}
	if t, ok := m.current(); ok {
		if s, ok := m.sessions[t.ID]; ok && s.Playing() {
			m.notice = switchRefused
			return
		}
	}
	switch {
	case m.active < 0 && delta > 0:
		m.active = 0
	case m.active < 0:
		m.active = len(m.tables) - 1
	default:
		m.active = (m.active + delta + len(m.tables)) % len(m.tables)
	}
	m.missing = ""
	m.notice = ""
	m.refresh()
	m.viewport.GotoBottom()
}

func (m *model) apply(ev playback.Event) {
	switch ev.Kind {
	case playback.EventPlaying:
		if ev.Playing {
			delete(m.failures, ev.TableID)
		} else {
			delete(m.live, ev.TableID)
		}
	case playback.EventThinking, playback.EventSpeaking:
		m.live[ev.TableID] = &liveMessage{speaker: ev.Speaker, indicator: ev.Indicator, text: ev.Partial}
	case playback.EventDelivered:
		delete(m.live, ev.TableID)
	case playback.EventFailed:
		m.failures[ev.TableID] = ev.Notice
		m.logger.Warn("round failed", "table", ev.TableID, "error", ev.Err)
	}

	if t, ok := m.current(); ok && t.ID == ev.TableID {
		m.refresh()
		m.viewport.GotoBottom()
	}
}

func (m *model) resize() {
	m.viewport.Width = m.width
	h := m.height - lipgloss.Height(m.headerView()) - lipgloss.Height(m.footerView())
	m.viewport.Height = max(h, minViewportLines)
}

func (m *model) refresh() {
	t, ok := m.current()
	if !ok {
		m.viewport.SetContent(m.theme.notice.Render(notFoundText))
		return
	}
	var entries []models.TranscriptEntry
	if s, ok := m.sessions[t.ID]; ok {
		entries = s.Transcript()
	}
	m.viewport.SetContent(renderTranscript(m.theme, entries, m.live[t.ID], m.viewport.Width))
}

func (m model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), m.viewport.View(), m.footerView())
}

func (m model) headerView() string {
	t, ok := m.current()
	if !ok {
		lines := []string{m.theme.title.Render("Faculty Club"), m.theme.notice.Render(notFoundText)}
		if m.missing != "" {
			lines = append(lines, m.theme.subtle.Render(fmt.Sprintf("No table matches %q. Use tab to browse the directory.", m.missing)))
		}
		return strings.Join(lines, "\n") + "\n"
	}

	status := playback.StatusIdle
	topic := t.Theme
	playing := false
	if s, ok := m.sessions[t.ID]; ok {
		status = s.Status()
		topic = s.Topic()
		playing = s.Playing()
	}
	statusLine := m.theme.status.Render(status)
	if playing {
		statusLine = m.spinner.View() + " " + statusLine
	}

	labels := lo.Map(t.Participants, func(p models.Participant, _ int) string { return p.Label })
	lines := []string{
		m.theme.title.Render(t.Title),
		m.theme.subtle.Render(fmt.Sprintf("%s · %s", t.Theme, directory.SeatLabel(t))),
		m.theme.accent.Render(strings.Join(labels, " · ")),
		"Topic: " + topic,
		statusLine,
	}
	if notice := m.failures[t.ID]; notice != "" {
		lines = append(lines, m.theme.notice.Render(notice))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m model) footerView() string {
	help := m.theme.subtle.Render("g generate · tab/shift+tab switch table · ↑/↓ scroll · q quit")
	if m.notice == "" {
		return "\n" + help
	}
	return m.theme.notice.Render(m.notice) + "\n" + help
}

func renderTranscript(th theme, entries []models.TranscriptEntry, live *liveMessage, width int) string {
	if len(entries) == 0 && live == nil {
		return th.body.Render(emptyStateText) + "\n" + th.subtle.Render(emptyStateHint)
	}

	body := th.body
	if width > 4 {
		body = body.Width(width - 4)
	}

	var b strings.Builder
	for _, e := range entries {
		head := th.speaker.Render(e.SpeakerLabel) + th.subtle.Render(" · "+formatTimestamp(e.CreatedAt))
		card := head + "\n" + body.Render(e.Content) + "\n" + th.subtle.Render(playback.IndicatorDelivered)
		b.WriteString(th.card.Render(card))
		b.WriteString("\n\n")
	}
	if live != nil {
		head := th.speaker.Render(live.speaker.Label) + " " + th.accent.Render(live.indicator)
		card := head
		if live.text != "" {
			card += "\n" + body.Render(live.text)
		}
		b.WriteString(th.liveCard.Render(card))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTimestamp(t time.Time) string {
	return t.Local().Format(timestampLayout)
}
