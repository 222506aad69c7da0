// Package playback drives one table's round on the client: request, thinking
// pause, typewriter reveal and transcript append, one round at a time.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"roundtable/internal/models"
	"roundtable/internal/transcript"
)

// IdleAfter is how long the last status stays up before resetting to idle.
const IdleAfter = 2500 * time.Millisecond

// ErrAlreadyPlaying is returned by Run while a round is in progress.
var ErrAlreadyPlaying = errors.New("round already playing")

type Option func(*Session)

func WithClock(c Clock) Option { return func(s *Session) { s.clock = c } }

func WithSink(sink Sink) Option { return func(s *Session) { s.sink = sink } }

func WithStore(store *transcript.Store) Option { return func(s *Session) { s.store = store } }

func WithLogger(logger *slog.Logger) Option { return func(s *Session) { s.logger = logger } }

// Session is the playback state of one table. Sessions share nothing, so
// several tables can play at once.
type Session struct {
	table  models.Table
	client RoundClient
	clock  Clock
	store  *transcript.Store
	sink   Sink
	logger *slog.Logger

	playing atomic.Bool

	mu        sync.Mutex
	status    string
	topic     string
	idleTimer Timer
}

func NewSession(table models.Table, client RoundClient, opts ...Option) *Session {
	s := &Session{
		table:  table,
		client: client,
		status: StatusIdle,
		topic:  table.Theme,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = RealClock()
	}
	if s.store == nil {
		s.store = transcript.NewStore()
	}
	if s.sink == nil {
		s.sink = func(Event) {}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Session) Table() models.Table { return s.table }

func (s *Session) Playing() bool { return s.playing.Load() }

func (s *Session) Transcript() []models.TranscriptEntry { return s.store.All() }

func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Topic is the last published topic, or the theme before the first round.
func (s *Session) Topic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topic
}

// Trigger starts a round in the background. It reports false, and does
// nothing, while a round is already playing.
func (s *Session) Trigger(ctx context.Context) bool {
	if !s.playing.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		if err := s.play(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("round ended with error", "table", s.table.ID, "error", err)
		}
	}()
	return true
}

// Run plays one round and returns when it finished.
func (s *Session) Run(ctx context.Context) error {
	if !s.playing.CompareAndSwap(false, true) {
		return ErrAlreadyPlaying
	}
	return s.play(ctx)
}

// play expects the playing flag to be set by the caller.
func (s *Session) play(ctx context.Context) error {
	s.cancelIdleReset()
	s.emit(Event{Kind: EventPlaying, Playing: true})
	defer func() {
		s.playing.Store(false)
		s.emit(Event{Kind: EventPlaying, Playing: false})
		if ctx.Err() == nil {
			s.scheduleIdleReset()
		}
	}()

	s.setStatus(StatusConnecting)
	started := s.clock.Now()
	rnd, err := s.client.RequestRound(ctx, s.request())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.setStatus(StatusError)
		s.emit(Event{Kind: EventFailed, Notice: FailureNotice(err), Err: err})
		return err
	}
	elapsed := s.clock.Now().Sub(started)
	s.setStatus(fmt.Sprintf("model responded in %.1fs", elapsed.Seconds()))

	topic := rnd.Topic
	if topic == "" {
		topic = s.table.Theme
	}
	s.mu.Lock()
	s.topic = topic
	s.mu.Unlock()
	s.emit(Event{Kind: EventTopic, Topic: topic})

	for i, msg := range rnd.Messages {
		if err := s.deliver(ctx, i, msg); err != nil {
			return err
		}
	}
	s.emit(Event{Kind: EventTranscript, Transcript: s.store.All()})
	return nil
}

// deliver plays one message and appends it once fully revealed.
func (s *Session) deliver(ctx context.Context, index int, msg models.RoundMessage) error {
	speaker := ResolveParticipant(s.table.Participants, msg.Speaker)
	delay := time.Duration(msg.ThinkingDelay * float64(time.Second))

	s.emit(Event{
		Kind:      EventThinking,
		Index:     index,
		Speaker:   speaker,
		Delay:     delay,
		Indicator: fmt.Sprintf("Thinking (%.1fs)…", msg.ThinkingDelay),
	})
	if err := s.clock.Sleep(ctx, delay); err != nil {
		return err
	}

	s.emit(Event{Kind: EventSpeaking, Index: index, Speaker: speaker, Indicator: IndicatorSpeaking})
	err := Reveal(ctx, s.clock, msg.Content, CharInterval(msg.SpeakingSpeedWPM), func(partial string) {
		s.emit(Event{Kind: EventSpeaking, Index: index, Speaker: speaker, Indicator: IndicatorSpeaking, Partial: partial})
	})
	if err != nil {
		return err
	}

	entry := models.TranscriptEntry{
		SpeakerLabel:  speaker.Label,
		SpeakerHandle: speaker.Handle,
		Content:       msg.Content,
		CreatedAt:     s.clock.Now(),
	}
	s.store.Append(entry)
	s.emit(Event{Kind: EventDelivered, Index: index, Speaker: speaker, Indicator: IndicatorDelivered, Partial: msg.Content, Entry: entry})
	return nil
}

func (s *Session) request() models.RoundRequest {
	return models.RoundRequest{
		TableID:      s.table.ID,
		TableName:    s.table.Title,
		Theme:        s.table.Theme,
		Participants: s.table.Participants,
		History:      s.store.All(),
	}
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.emit(Event{Kind: EventStatus, Status: status})
}

func (s *Session) scheduleIdleReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = s.clock.AfterFunc(IdleAfter, func() {
		if s.playing.Load() {
			return
		}
		s.setStatus(StatusIdle)
	})
}

func (s *Session) cancelIdleReset() {
	s.mu.Lock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.mu.Unlock()
}

func (s *Session) emit(ev Event) {
	ev.TableID = s.table.ID
	s.sink(ev)
}
