package session

import (
	"fmt"
	"time"

	"github.com/satindergrewal/ambimix/internal/mixer"
)

// Skipped is a snapshot that could not be restored.
type Skipped struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// RestoreReport summarizes a Load.
type RestoreReport struct {
	Restored int       `json:"restoredCount"`
	Skipped  []Skipped `json:"skipped"`
}

// SkippedSources lists the source paths that were not restored, in document order.
func (r RestoreReport) SkippedSources() []string {
	out := make([]string, len(r.Skipped))
	for i, s := range r.Skipped {
		out[i] = s.Source
	}
	return out
}

// Save snapshots every track of m, in mixer order.
func Save(m *mixer.Engine, meta Metadata) Document {
	tracks := m.Tracks()
	doc := Document{
		Version:  Version,
		Tracks:   make([]TrackSnapshot, 0, len(tracks)),
		Metadata: meta,
	}
	for _, t := range tracks {
		doc.Tracks = append(doc.Tracks, TrackSnapshot{
			Source:     t.Source,
			Volume:     ptr(t.Volume),
			Loop:       t.Loop,
			Automation: SnapshotAutomation(t.Automation),
		})
	}
	return doc
}

// DefaultMetadata names a session and describes its size.
func DefaultMetadata(name string, tracks int, now time.Time) Metadata {
	return Metadata{
		Name:        name,
		Created:     now.UTC().Format(time.RFC3339),
		Description: fmt.Sprintf("Ambient mixer session with %d tracks", tracks),
	}
}

// Load replaces the contents of m with the tracks in doc. Missing files,
// duplicate sources and invalid automation are skipped and reported.
// Restored tracks are left stopped.
func Load(doc Document, m *mixer.Engine) RestoreReport {
	// ClearAll only fails with ErrEmptyMixer.
	_, _ = m.ClearAll()

	var report RestoreReport
	skip := func(source string, err error) {
		report.Skipped = append(report.Skipped, Skipped{Source: source, Reason: err.Error()})
	}
	for _, snap := range doc.Tracks {
		auto, err := snap.Automation.Automation()
		if err != nil {
			skip(snap.Source, err)
			continue
		}
		info, err := m.AddTrack(snap.Source)
		if err != nil {
			skip(snap.Source, err)
			continue
		}
		if err := restore(m, info.ID, snap, auto); err != nil {
			// A concurrent remove may have dropped it already; either way
			// the track is not restored.
			_ = m.RemoveTrack(info.ID)
			skip(snap.Source, err)
			continue
		}
		report.Restored++
	}
	return report
}

// restore applies a snapshot's settings to the freshly added track id.
func restore(m *mixer.Engine, id string, snap TrackSnapshot, auto mixer.Automation) error {
	if err := m.ConfigureAutomation(id, auto); err != nil {
		return err
	}
	if err := m.SetVolume(id, snap.VolumeOrDefault()); err != nil {
		return err
	}
	return m.SetLoop(id, snap.Loop)
}
