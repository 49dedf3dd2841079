package mixer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satindergrewal/ambimix/internal/fanout"
)

// DefaultTickInterval is how often Run drives automation.
const DefaultTickInterval = 100 * time.Millisecond

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	TickInterval time.Duration
	Rand         Rand             // automation randomness, seeded randomly if nil
	Now          func() time.Time // clock used by commands and Run
	NewID        func() string    // track id generator, uuid by default
	EventBuffer  int              // per-subscriber event buffer
}

type portFailure struct {
	handle Handle
	err    error
}

// Engine owns the ordered set of tracks. All track mutations go through its
// methods and are serialized by one mutex, so no automation step can land
// after a Stop or ClearAll returns.
type Engine struct {
	port     OutputPort
	sched    *Scheduler
	interval time.Duration
	now      func() time.Time
	newID    func() string

	mu     sync.Mutex
	tracks []*Track

	failures chan portFailure
	events   *fanout.Broadcaster[Event]
}

// NewEngine creates an empty mixer driving port.
func NewEngine(port OutputPort, opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	e := &Engine{
		port:     port,
		sched:    NewScheduler(opts.Rand, opts.TickInterval),
		interval: opts.TickInterval,
		now:      opts.Now,
		newID:    opts.NewID,
		failures: make(chan portFailure, 64),
		events:   fanout.New[Event](opts.EventBuffer),
	}
	if r, ok := port.(ErrorReporter); ok {
		r.OnError(e.reportFailure)
	}
	return e
}

// TickInterval returns the automation cadence.
func (e *Engine) TickInterval() time.Duration {
	return e.interval
}

// Subscribe registers a listener for engine events. Slow listeners lose
// events instead of blocking the engine.
func (e *Engine) Subscribe() *fanout.Listener[Event] {
	return e.events.Subscribe()
}

// Unsubscribe removes an event listener.
func (e *Engine) Unsubscribe(l *fanout.Listener[Event]) {
	e.events.Unsubscribe(l)
}

// Notify publishes an event raised outside the engine, such as a session
// save. Count is filled in from the current track list.
func (e *Engine) Notify(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishLocked(ev)
}

func (e *Engine) publishLocked(ev Event) {
	ev.Count = len(e.tracks)
	if dropped := e.events.Publish(ev); dropped > 0 {
		log.Printf("Event %s dropped by %d slow subscriber(s)", ev.Kind, dropped)
	}
}

func (e *Engine) publishTrackLocked(kind EventKind, t *Track, err error) {
	info := t.Info()
	ev := Event{Kind: kind, TrackID: t.id, Track: &info}
	if err != nil {
		ev.Err = err.Error()
	}
	e.publishLocked(ev)
}

// AddTrack creates a stopped track for source. Sources are compared by their
// resolved absolute path, case-sensitively.
func (e *Engine) AddTrack(source string) (TrackInfo, error) {
	path, err := ResolveSource(source)
	if err != nil {
		return TrackInfo{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.tracks {
		if t.source == path {
			return TrackInfo{}, fmt.Errorf("%w: %s", ErrDuplicateSource, path)
		}
	}
	t, err := NewTrack(e.newID(), path, e.port, e.sched)
	if err != nil {
		return TrackInfo{}, err
	}
	e.tracks = append(e.tracks, t)
	e.publishTrackLocked(EventTrackAdded, t, nil)
	return t.Info(), nil
}

// RemoveTrack stops the track, releases its resources and drops it.
func (e *Engine) RemoveTrack(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, t, err := e.findLocked(id)
	if err != nil {
		return err
	}
	t.Stop()
	e.tracks = append(e.tracks[:i], e.tracks[i+1:]...)
	e.publishLocked(Event{Kind: EventTrackRemoved, TrackID: id})
	return nil
}

// Play starts or resumes one track.
func (e *Engine) Play(id string) error {
	return e.withTrack(id, func(t *Track) error {
		prev := t.status
		if err := t.Play(e.now()); err != nil {
			return err
		}
		if t.status != prev {
			e.publishTrackLocked(EventTrackStatus, t, nil)
		}
		return nil
	})
}

// Pause pauses one track. Pausing a track that is not playing is a no-op.
func (e *Engine) Pause(id string) error {
	return e.withTrack(id, func(t *Track) error {
		if t.Pause() {
			e.publishTrackLocked(EventTrackStatus, t, nil)
		}
		return nil
	})
}

// Toggle pauses a playing track and plays anything else.
func (e *Engine) Toggle(id string) error {
	return e.withTrack(id, func(t *Track) error {
		if t.status == Playing {
			t.Pause()
		} else if err := t.Play(e.now()); err != nil {
			return err
		}
		e.publishTrackLocked(EventTrackStatus, t, nil)
		return nil
	})
}

// Stop halts one track and cancels its automation.
func (e *Engine) Stop(id string) error {
	return e.withTrack(id, func(t *Track) error {
		if t.Stop() {
			e.publishTrackLocked(EventTrackStatus, t, nil)
		}
		return nil
	})
}

// SetVolume sets one track's volume, clamped to [0, 1].
func (e *Engine) SetVolume(id string, v float64) error {
	return e.withTrack(id, func(t *Track) error {
		t.SetVolume(v)
		e.publishTrackLocked(EventTrackVolume, t, nil)
		return nil
	})
}

// SetLoop sets whether one track restarts at end of file.
func (e *Engine) SetLoop(id string, loop bool) error {
	return e.withTrack(id, func(t *Track) error {
		t.SetLoop(loop)
		e.publishTrackLocked(EventTrackStatus, t, nil)
		return nil
	})
}

// ConfigureAutomation validates and applies a to one track.
func (e *Engine) ConfigureAutomation(id string, a Automation) error {
	return e.withTrack(id, func(t *Track) error {
		if err := t.ConfigureAutomation(a, e.now()); err != nil {
			return err
		}
		e.publishTrackLocked(EventTrackStatus, t, nil)
		return nil
	})
}

// PlayAll starts every stopped or paused track and returns how many started.
// Tracks that fail to load are skipped and their errors joined.
func (e *Engine) PlayAll() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.tracks) == 0 {
		return 0, ErrEmptyMixer
	}
	now := e.now()
	started, candidates := 0, 0
	var errs []error
	for _, t := range e.tracks {
		if t.status == Playing {
			continue
		}
		candidates++
		if err := t.Play(now); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
			continue
		}
		started++
		e.publishTrackLocked(EventTrackStatus, t, nil)
	}
	if candidates == 0 {
		return 0, ErrAllAlreadyPlaying
	}
	return started, errors.Join(errs...)
}

// StopAll stops every track and returns how many were not already stopped.
func (e *Engine) StopAll() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.tracks) == 0 {
		return 0, ErrEmptyMixer
	}
	n := 0
	for _, t := range e.tracks {
		if t.Stop() {
			n++
			e.publishTrackLocked(EventTrackStatus, t, nil)
		}
	}
	return n, nil
}

// ClearAll stops and removes every track and returns how many were removed.
func (e *Engine) ClearAll() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.tracks)
	if n == 0 {
		return 0, ErrEmptyMixer
	}
	for _, t := range e.tracks {
		t.Stop()
	}
	e.tracks = nil
	e.publishLocked(Event{Kind: EventMixerCleared, Removed: n})
	return n, nil
}

// Count returns the number of loaded tracks.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tracks)
}

// Tracks returns snapshots of every track in mixer order.
func (e *Engine) Tracks() []TrackInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TrackInfo, len(e.tracks))
	for i, t := range e.tracks {
		out[i] = t.Info()
	}
	return out
}

// Track returns a snapshot of one track.
func (e *Engine) Track(id string) (TrackInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, t, err := e.findLocked(id)
	if err != nil {
		return TrackInfo{}, err
	}
	return t.Info(), nil
}

// Tick applies queued port failures, fires due automation and advances
// in-flight transitions. Only playing tracks are touched.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.drainFailuresLocked()
	for _, t := range e.tracks {
		if t.status != Playing {
			continue
		}
		e.sched.Fire(t, now)
		if t.advance() {
			e.publishTrackLocked(EventTrackVolume, t, nil)
		}
	}
}

// Run drives Tick on the engine cadence. Blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(e.now())
		}
	}
}

// reportFailure queues an asynchronous port failure for the next tick.
func (e *Engine) reportFailure(h Handle, err error) {
	select {
	case e.failures <- portFailure{handle: h, err: err}:
	default:
		log.Printf("Port failure queue full, dropped failure for handle %d: %v", h, err)
	}
}

func (e *Engine) drainFailuresLocked() {
	for {
		select {
		case f := <-e.failures:
			for _, t := range e.tracks {
				if t.loaded && t.handle == f.handle {
					t.Stop()
					err := f.err
					if !errors.Is(err, ErrDecodeFailed) && !errors.Is(err, ErrSourceNotFound) {
						err = fmt.Errorf("%w: %v", ErrDecodeFailed, err)
					}
					e.publishTrackLocked(EventTrackStatus, t, err)
					break
				}
			}
		default:
			return
		}
	}
}

func (e *Engine) withTrack(id string, fn func(t *Track) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, t, err := e.findLocked(id)
	if err != nil {
		return err
	}
	return fn(t)
}

func (e *Engine) findLocked(id string) (int, *Track, error) {
	for i, t := range e.tracks {
		if t.id == id {
			return i, t, nil
		}
	}
	return -1, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}
