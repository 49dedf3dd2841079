package mixer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Status is a track's playback state.
type Status int

const (
	Stopped Status = iota
	Playing
	Paused
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TrackInfo is a read-only snapshot of a track.
type TrackInfo struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Source        string     `json:"source"`
	Volume        float64    `json:"volume"`
	Loop          bool       `json:"loop"`
	Status        Status     `json:"status"`
	Automation    Automation `json:"automation"`
	Transitioning bool       `json:"transitioning"`
}

// Track is one independently controllable looping source. It is not safe
// for concurrent use; Engine serializes access.
type Track struct {
	id     string
	name   string
	source string

	volume     float64
	loop       bool
	status     Status
	automation Automation
	nextFireAt time.Time
	ramp       *ramp

	port   OutputPort
	sched  *Scheduler
	handle Handle
	loaded bool
}

// ResolveSource turns source into an absolute, cleaned path and checks that
// it names an existing regular file.
func ResolveSource(source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", fmt.Errorf("%w: empty path", ErrSourceNotFound)
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceNotFound, source, err)
	}
	fi, err := os.Stat(abs)
	if err != nil || !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, abs)
	}
	return abs, nil
}

// NewTrack validates source and creates a stopped track at full volume.
// Nothing is loaded until the first Play.
func NewTrack(id, source string, port OutputPort, sched *Scheduler) (*Track, error) {
	path, err := ResolveSource(source)
	if err != nil {
		return nil, err
	}
	return &Track{
		id:     id,
		name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		source: path,
		volume: 1,
		port:   port,
		sched:  sched,
	}, nil
}

func (t *Track) ID() string      { return t.id }
func (t *Track) Source() string  { return t.source }
func (t *Track) Status() Status  { return t.status }
func (t *Track) Volume() float64 { return t.volume }

// Info returns a snapshot of the track.
func (t *Track) Info() TrackInfo {
	return TrackInfo{
		ID:            t.id,
		Name:          t.name,
		Source:        t.source,
		Volume:        t.volume,
		Loop:          t.loop,
		Status:        t.status,
		Automation:    t.automation,
		Transitioning: t.ramp != nil,
	}
}

// Play starts a stopped track or resumes a paused one. Playing tracks are
// left alone. On a load failure the track stays Stopped.
func (t *Track) Play(now time.Time) error {
	switch t.status {
	case Playing:
		return nil
	case Paused:
		t.port.Resume(t.handle)
	case Stopped:
		h, err := t.port.Load(t.source)
		if err != nil {
			if errors.Is(err, ErrSourceNotFound) || errors.Is(err, ErrDecodeFailed) {
				return fmt.Errorf("load %s: %w", t.source, err)
			}
			return fmt.Errorf("load %s: %w: %v", t.source, ErrDecodeFailed, err)
		}
		t.handle, t.loaded = h, true
		t.port.Play(h, t.volume, t.loop)
	}
	t.status = Playing
	if t.automation.Enabled && t.nextFireAt.IsZero() {
		t.nextFireAt = t.sched.NextFire(t.automation, now)
	}
	return nil
}

// Pause pauses a playing track and reports whether anything changed.
func (t *Track) Pause() bool {
	if t.status != Playing {
		return false
	}
	t.port.Pause(t.handle)
	t.status = Paused
	return true
}

// Stop halts playback, releases the port handle and cancels any pending
// automation fire or in-flight transition. It reports whether the status changed.
func (t *Track) Stop() bool {
	changed := t.status != Stopped
	if t.loaded {
		t.port.Stop(t.handle)
		t.port.Release(t.handle)
		t.loaded = false
	}
	t.status = Stopped
	t.ramp = nil
	t.nextFireAt = time.Time{}
	return changed
}

// SetVolume clamps v to [0, 1] and stores it. An explicit volume takes over
// from any in-flight automation transition.
func (t *Track) SetVolume(v float64) {
	t.ramp = nil
	t.applyVolume(v)
}

func (t *Track) applyVolume(v float64) {
	t.volume = clampVolume(v)
	if t.loaded && (t.status == Playing || t.status == Paused) {
		t.port.SetVolume(t.handle, t.volume)
	}
}

// SetLoop sets whether playback restarts at end of file.
func (t *Track) SetLoop(loop bool) {
	t.loop = loop
	if t.loaded {
		t.port.SetLoop(t.handle, loop)
	}
}

// ConfigureAutomation validates and stores a. Disabling abandons any
// in-flight transition where it stands. A playing track is rescheduled from
// now; other tracks are scheduled when they next start playing.
func (t *Track) ConfigureAutomation(a Automation, now time.Time) error {
	if err := a.Validate(); err != nil {
		return err
	}
	t.automation = a
	if !a.Enabled {
		t.ramp = nil
		t.nextFireAt = time.Time{}
		return nil
	}
	if t.status == Playing {
		t.nextFireAt = t.sched.NextFire(a, now)
	} else {
		t.nextFireAt = time.Time{}
	}
	return nil
}

// advance steps an in-flight transition and reports whether the volume moved.
func (t *Track) advance() bool {
	if t.ramp == nil {
		return false
	}
	v, done := t.ramp.advance()
	if done {
		t.ramp = nil
	}
	prev := t.volume
	t.applyVolume(v)
	return t.volume != prev
}
