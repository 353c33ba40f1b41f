// Package metronome implements a look-ahead beat scheduler. A coarse host
// timer wakes up every [DefaultLookahead] and schedules every click that
// falls inside the next [DefaultScheduleAhead] seconds of audio time, so beat
// timing is sample accurate even when the host timer jitters.
package metronome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/chordcoord/internal/eventloop"
	"github.com/MrWong99/chordcoord/internal/observe"
	"github.com/MrWong99/chordcoord/pkg/audio"
)

const (
	// DefaultBPM is the tempo used until SetBPM is called.
	DefaultBPM = 120

	// DefaultLookahead is the host-timer period of the driver tick.
	DefaultLookahead = 25 * time.Millisecond

	// DefaultScheduleAhead is how far ahead of the audio clock clicks are
	// scheduled, in seconds.
	DefaultScheduleAhead = 0.1

	// BeatsPerBar sets the accent period.
	BeatsPerBar = 4
)

// ErrInvalidTempo is returned by [Scheduler.SetBPM] for non-positive tempos.
var ErrInvalidTempo = errors.New("metronome: tempo must be positive")

// TempoStore persists the selected tempo.
type TempoStore interface {
	SaveTempo(ctx context.Context, bpm int) error
}

// Option configures a [Scheduler] during construction.
type Option func(*Scheduler)

// WithBPM sets the initial tempo. Non-positive values are ignored.
func WithBPM(bpm int) Option {
	return func(s *Scheduler) {
		if bpm > 0 {
			s.bpm = bpm
		}
	}
}

// WithLookahead sets the driver tick period.
func WithLookahead(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lookahead = d
		}
	}
}

// WithScheduleAhead sets the scheduling window in seconds of audio time.
func WithScheduleAhead(sec float64) Option {
	return func(s *Scheduler) {
		if sec > 0 {
			s.scheduleAhead = sec
		}
	}
}

// WithTempoStore persists tempo changes.
func WithTempoStore(ts TempoStore) Option {
	return func(s *Scheduler) {
		s.tempo = ts
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// Scheduler emits metronome clicks against an audio clock. Each Start
// acquires a fresh [Graph] from the factory; Stop releases it.
//
// All methods are safe for concurrent use.
type Scheduler struct {
	loop          *eventloop.Loop
	factory       GraphFactory
	lookahead     time.Duration
	scheduleAhead float64
	tempo         TempoStore
	metrics       *observe.Metrics

	lifecycle sync.Mutex

	mu           sync.Mutex
	state        audio.RunState
	gen          uint64
	bpm          int
	graph        Graph
	beatIndex    int
	nextNoteTime float64
	driver       eventloop.TimerID
	visuals      map[uint64]eventloop.TimerID
	nextVisual   uint64
	subs         map[uint64]chan Event
	nextSub      uint64
}

// New creates an idle scheduler whose driver runs on loop.
func New(loop *eventloop.Loop, factory GraphFactory, opts ...Option) *Scheduler {
	s := &Scheduler{
		loop:          loop,
		factory:       factory,
		lookahead:     DefaultLookahead,
		scheduleAhead: DefaultScheduleAhead,
		bpm:           DefaultBPM,
		visuals:       make(map[uint64]eventloop.TimerID),
		subs:          make(map[uint64]chan Event),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Start acquires an output graph and runs the first scheduling pass
// immediately. The first beat lands on the graph's current time. Start is a
// no-op while Running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() == audio.Running {
		return nil
	}

	g, err := s.factory(ctx)
	if err != nil {
		return fmt.Errorf("metronome: start: %w", err)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = audio.Running
	s.graph = g
	s.beatIndex = 0
	s.nextNoteTime = 0
	if g != nil {
		s.nextNoteTime = g.CurrentTime()
	}
	bpm := s.bpm
	s.mu.Unlock()

	slog.Info("metronome started", "bpm", bpm)
	s.tick(gen)
	return nil
}

// Stop cancels the driver and every pending visual notification, then
// closes the graph. Close errors are logged and swallowed. Stop is
// idempotent.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state == audio.Idle {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.loop.Cancel(s.driver)
	for key, id := range s.visuals {
		s.loop.Cancel(id)
		delete(s.visuals, key)
	}
	g := s.graph
	s.graph = nil
	s.state = audio.Idle
	s.mu.Unlock()

	if g != nil {
		if err := g.Close(); err != nil {
			slog.Debug("metronome: closing graph", "err", err)
		}
	}
	slog.Info("metronome stopped")
}

// SetBPM changes the tempo. The new interval applies from the next beat
// that has not been scheduled yet. The tempo is persisted when a
// [TempoStore] is configured; persistence errors are logged only.
func (s *Scheduler) SetBPM(ctx context.Context, bpm int) error {
	if bpm <= 0 {
		return ErrInvalidTempo
	}
	s.mu.Lock()
	s.bpm = bpm
	s.mu.Unlock()

	if s.tempo != nil {
		if err := s.tempo.SaveTempo(ctx, bpm); err != nil {
			slog.Warn("metronome: persisting tempo", "bpm", bpm, "err", err)
		}
	}
	return nil
}

// BPM returns the current tempo.
func (s *Scheduler) BPM() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpm
}

// State returns the run state.
func (s *Scheduler) State() audio.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe returns a channel that receives each beat when its audio time
// is reached on the host clock, for visual feedback. Slow subscribers lose
// the oldest beats. The cancel func is safe to call more than once.
func (s *Scheduler) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// tick runs one scheduling pass and re-arms the driver.
func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != audio.Running {
		s.mu.Unlock()
		return
	}

	g := s.graph
	var (
		due []Event
		now float64
	)
	if g != nil {
		now = g.CurrentTime()
		for s.nextNoteTime < now+s.scheduleAhead {
			e := Event{
				BeatIndex: s.beatIndex,
				AudioTime: s.nextNoteTime,
				Accent:    s.beatIndex%BeatsPerBar == 0,
			}
			due = append(due, e)
			s.armVisualLocked(gen, e, now)
			s.nextNoteTime += 60 / float64(s.bpm)
			s.beatIndex++
		}
	}
	s.driver = s.loop.After(s.lookahead, func() { s.tick(gen) })
	s.mu.Unlock()

	ctx := context.Background()
	for _, e := range due {
		if err := g.Click(e); err != nil {
			slog.Debug("metronome: click", "beat", e.BeatIndex, "err", err)
			continue
		}
		s.metrics.RecordBeat(ctx, e.Accent, e.AudioTime < now)
	}
}

// armVisualLocked schedules the subscriber notification for e at its audio
// time. Must be called with s.mu held.
func (s *Scheduler) armVisualLocked(gen uint64, e Event, now float64) {
	delay := time.Duration((e.AudioTime - now) * float64(time.Second))
	s.nextVisual++
	key := s.nextVisual
	s.visuals[key] = s.loop.After(delay, func() { s.fireVisual(gen, key, e) })
}

func (s *Scheduler) fireVisual(gen, key uint64, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	delete(s.visuals, key)
	for _, ch := range s.subs {
		select {
		case ch <- e:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- e:
		default:
		}
	}
}
