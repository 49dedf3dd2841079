// Package session snapshots a mixer into a durable document and restores it.
package session

import (
	"errors"
	"fmt"

	"github.com/satindergrewal/ambimix/internal/mixer"
)

// Version is written into every saved document.
const Version = "1.0"

var (
	// ErrSessionIO covers every persistence failure. In-memory mixer state is
	// never touched when it is returned.
	ErrSessionIO = errors.New("session io failure")
	// ErrNotFound means the named session does not exist in the store.
	ErrNotFound = fmt.Errorf("%w: session not found", ErrSessionIO)
)

// Document is the persisted form of a mixer. Playback status is not stored.
type Document struct {
	Version  string          `json:"version" yaml:"version"`
	Tracks   []TrackSnapshot `json:"tracks" yaml:"tracks"`
	Metadata Metadata        `json:"metadata" yaml:"metadata"`
}

// Metadata describes a saved session.
type Metadata struct {
	Name        string `json:"name" yaml:"name"`
	Created     string `json:"created" yaml:"created"`
	Description string `json:"description" yaml:"description"`
}

// TrackSnapshot is one track's persisted settings. Nil pointers mean the
// field was missing from the document and take their defaults on load.
type TrackSnapshot struct {
	Source     string              `json:"source" yaml:"source"`
	Volume     *float64            `json:"volume,omitempty" yaml:"volume,omitempty"`
	Loop       bool                `json:"loop" yaml:"loop"`
	Automation *AutomationSnapshot `json:"automation" yaml:"automation"`
}

// AutomationSnapshot is the persisted automation config.
type AutomationSnapshot struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	Mode            string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	IntervalSeconds *float64 `json:"intervalSeconds,omitempty" yaml:"intervalSeconds,omitempty"`
	MinSeconds      *float64 `json:"minSeconds,omitempty" yaml:"minSeconds,omitempty"`
	MaxSeconds      *float64 `json:"maxSeconds,omitempty" yaml:"maxSeconds,omitempty"`
	TransitionClass string   `json:"transitionClass,omitempty" yaml:"transitionClass,omitempty"`
}

// VolumeOrDefault returns the snapshot volume, 1.0 when missing.
func (s TrackSnapshot) VolumeOrDefault() float64 {
	if s.Volume == nil {
		return 1
	}
	return *s.Volume
}

// SnapshotAutomation converts a live config. The zero config is stored as null.
func SnapshotAutomation(a mixer.Automation) *AutomationSnapshot {
	if a == (mixer.Automation{}) {
		return nil
	}
	snap := &AutomationSnapshot{
		Enabled:         a.Enabled,
		Mode:            a.Mode.String(),
		TransitionClass: a.Transition.String(),
	}
	if a.IntervalSeconds != 0 {
		snap.IntervalSeconds = ptr(a.IntervalSeconds)
	}
	if a.MinSeconds != 0 {
		snap.MinSeconds = ptr(a.MinSeconds)
	}
	if a.MaxSeconds != 0 {
		snap.MaxSeconds = ptr(a.MaxSeconds)
	}
	return snap
}

// Automation converts the snapshot back into a live config. A nil snapshot is
// disabled automation; a missing transition class is medium.
func (s *AutomationSnapshot) Automation() (mixer.Automation, error) {
	if s == nil {
		return mixer.Automation{}, nil
	}
	mode, err := mixer.ParseMode(s.Mode)
	if err != nil {
		return mixer.Automation{}, err
	}
	class, err := mixer.ParseTransitionClass(s.TransitionClass)
	if err != nil {
		return mixer.Automation{}, err
	}
	a := mixer.Automation{Enabled: s.Enabled, Mode: mode, Transition: class}
	if s.IntervalSeconds != nil {
		a.IntervalSeconds = *s.IntervalSeconds
	}
	if s.MinSeconds != nil {
		a.MinSeconds = *s.MinSeconds
	}
	if s.MaxSeconds != nil {
		a.MaxSeconds = *s.MaxSeconds
	}
	return a, nil
}

func ptr[T any](v T) *T { return &v }
