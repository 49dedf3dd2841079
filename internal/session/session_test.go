package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/satindergrewal/ambimix/internal/mixer"
)

// nopPort accepts every call and hands out sequential handles.
type nopPort struct {
	mu   sync.Mutex
	next mixer.Handle
}

func (p *nopPort) Load(string) (mixer.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return p.next, nil
}
func (p *nopPort) Play(mixer.Handle, float64, bool) {}
func (p *nopPort) Pause(mixer.Handle)               {}
func (p *nopPort) Resume(mixer.Handle)              {}
func (p *nopPort) Stop(mixer.Handle)                {}
func (p *nopPort) SetVolume(mixer.Handle, float64)  {}
func (p *nopPort) SetLoop(mixer.Handle, bool)       {}
func (p *nopPort) Release(mixer.Handle)             {}

func newEngine() *mixer.Engine {
	return mixer.NewEngine(&nopPort{}, mixer.Options{})
}

func writeSource(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("not really audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func mustAdd(t *testing.T, e *mixer.Engine, source string) mixer.TrackInfo {
	t.Helper()
	info, err := e.AddTrack(source)
	if err != nil {
		t.Fatalf("AddTrack(%s): %v", source, err)
	}
	return info
}

// --- Snapshot and restore ---

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rain := writeSource(t, dir, "rain.ogg")
	wind := writeSource(t, dir, "wind.wav")

	e := newEngine()
	a := mustAdd(t, e, rain)
	b := mustAdd(t, e, wind)
	e.SetVolume(a.ID, 0.4)
	e.SetLoop(b.ID, true)
	auto := mixer.Automation{Enabled: true, Mode: mixer.ModeRandom, MinSeconds: 2, MaxSeconds: 6, Transition: mixer.TransitionSlow}
	if err := e.ConfigureAutomation(b.ID, auto); err != nil {
		t.Fatal(err)
	}
	e.Play(a.ID)

	doc := Save(e, DefaultMetadata("evening", e.Count(), time.Now()))
	if doc.Version != Version {
		t.Errorf("Version = %q, want %q", doc.Version, Version)
	}
	if doc.Metadata.Description != "Ambient mixer session with 2 tracks" {
		t.Errorf("Description = %q", doc.Metadata.Description)
	}

	data, err := JSON.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := JSON.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}

	restored := newEngine()
	mustAdd(t, restored, writeSource(t, dir, "leftover.mp3"))
	report := Load(decoded, restored)
	if report.Restored != 2 || len(report.Skipped) != 0 {
		t.Fatalf("report = %+v, want 2 restored", report)
	}

	tracks := restored.Tracks()
	if len(tracks) != 2 {
		t.Fatalf("Tracks = %d, want 2 (load replaces contents)", len(tracks))
	}
	if tracks[0].Source != rain || tracks[1].Source != wind {
		t.Errorf("order = %s, %s", tracks[0].Source, tracks[1].Source)
	}
	if tracks[0].Volume != 0.4 {
		t.Errorf("Volume = %v, want 0.4", tracks[0].Volume)
	}
	if !tracks[1].Loop {
		t.Error("Loop flag not restored")
	}
	if tracks[1].Automation != auto {
		t.Errorf("Automation = %+v, want %+v", tracks[1].Automation, auto)
	}
	for _, tr := range tracks {
		if tr.Status != mixer.Stopped {
			t.Errorf("%s status = %v, want stopped", tr.Name, tr.Status)
		}
	}
}

func TestSaveLoadEmptyMixer(t *testing.T) {
	doc := Save(newEngine(), DefaultMetadata("silence", 0, time.Now()))
	if doc.Tracks == nil || len(doc.Tracks) != 0 {
		t.Fatalf("Tracks = %#v, want empty slice", doc.Tracks)
	}
	for _, c := range []Codec{JSON, YAML} {
		data, err := c.Marshal(doc)
		if err != nil {
			t.Fatal(err)
		}
		decoded, err := c.Unmarshal(data)
		if err != nil {
			t.Fatalf("%s: %v", c.Ext(), err)
		}

		restored := newEngine()
		mustAdd(t, restored, writeSource(t, t.TempDir(), "leftover.ogg"))
		report := Load(decoded, restored)
		if report.Restored != 0 || len(report.Skipped) != 0 {
			t.Errorf("%s: report = %+v, want nothing restored or skipped", c.Ext(), report)
		}
		if restored.Count() != 0 {
			t.Errorf("%s: Count = %d, want 0", c.Ext(), restored.Count())
		}
	}
}

func TestLoadSkipsMissingAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	rain := writeSource(t, dir, "rain.ogg")
	doc := Document{Version: Version, Tracks: []TrackSnapshot{
		{Source: rain},
		{Source: filepath.Join(dir, "gone.ogg")},
		{Source: rain},
	}}
	e := newEngine()
	report := Load(doc, e)
	if report.Restored != 1 {
		t.Errorf("Restored = %d, want 1", report.Restored)
	}
	if got := report.SkippedSources(); len(got) != 2 {
		t.Fatalf("Skipped = %v, want 2 entries", got)
	}
	if !strings.Contains(report.Skipped[0].Reason, "not found") {
		t.Errorf("missing reason = %q", report.Skipped[0].Reason)
	}
	if !strings.Contains(report.Skipped[1].Reason, "duplicate") {
		t.Errorf("duplicate reason = %q", report.Skipped[1].Reason)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "birds.flac")
	raw := `{"version":"1.0","tracks":[{"source":"` + filepath.ToSlash(src) + `","automation":{"enabled":true,"intervalSeconds":3}}]}`
	doc, err := JSON.Unmarshal([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	e := newEngine()
	if r := Load(doc, e); r.Restored != 1 {
		t.Fatalf("report = %+v", r)
	}
	tr := e.Tracks()[0]
	if tr.Volume != 1 {
		t.Errorf("Volume = %v, want 1", tr.Volume)
	}
	if tr.Loop {
		t.Error("Loop defaulted to true")
	}
	if tr.Automation.Mode != mixer.ModeFixed || tr.Automation.Transition != mixer.TransitionMedium {
		t.Errorf("Automation = %+v, want fixed/medium", tr.Automation)
	}
}

func TestLoadSkipsInvalidAutomation(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "fire.wav")
	doc := Document{Tracks: []TrackSnapshot{{
		Source:     src,
		Automation: &AutomationSnapshot{Enabled: true, Mode: "random", MinSeconds: ptr(9.0), MaxSeconds: ptr(3.0)},
	}}}
	e := newEngine()
	report := Load(doc, e)
	if report.Restored != 0 || len(report.Skipped) != 1 {
		t.Errorf("report = %+v, want one skip", report)
	}
	if e.Count() != 0 {
		t.Errorf("Count = %d, want 0 (rejected track removed)", e.Count())
	}
	if len(report.Skipped) == 1 && !strings.Contains(report.Skipped[0].Reason, "invalid automation") {
		t.Errorf("Reason = %q", report.Skipped[0].Reason)
	}
}

func TestNullAutomationRoundTrip(t *testing.T) {
	if SnapshotAutomation(mixer.Automation{}) != nil {
		t.Error("Zero automation should snapshot as null")
	}
	var snap *AutomationSnapshot
	a, err := snap.Automation()
	if err != nil || a != (mixer.Automation{}) {
		t.Errorf("nil snapshot = %+v, %v", a, err)
	}
}

// --- Codecs ---

func TestMissingTracksKey(t *testing.T) {
	for _, c := range []Codec{JSON, YAML} {
		_, err := c.Unmarshal([]byte(`{"version": "1.0"}`))
		if !errors.Is(err, ErrSessionIO) {
			t.Errorf("%s: err = %v, want ErrSessionIO", c.Ext(), err)
		}
	}
	if _, err := JSON.Unmarshal([]byte("{not json")); !errors.Is(err, ErrSessionIO) {
		t.Errorf("Malformed json err = %v", err)
	}
}

func TestEmptyTracksIsValid(t *testing.T) {
	doc, err := JSON.Unmarshal([]byte(`{"version":"1.0","tracks":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Tracks) != 0 {
		t.Errorf("Tracks = %v", doc.Tracks)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	doc := Document{
		Version:  Version,
		Tracks:   []TrackSnapshot{{Source: "/tmp/a.ogg", Volume: ptr(0.5), Loop: true, Automation: &AutomationSnapshot{Enabled: true, Mode: "fixed", IntervalSeconds: ptr(4.0), TransitionClass: "fast"}}},
		Metadata: Metadata{Name: "night"},
	}
	data, err := YAML.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	got, err := YAML.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Metadata.Name != "night" || len(got.Tracks) != 1 {
		t.Fatalf("got %+v", got)
	}
	tr := got.Tracks[0]
	if tr.VolumeOrDefault() != 0.5 || !tr.Loop || tr.Automation.TransitionClass != "fast" || *tr.Automation.IntervalSeconds != 4 {
		t.Errorf("track = %+v auto = %+v", tr, tr.Automation)
	}
}

func TestCodecFor(t *testing.T) {
	tests := map[string]Codec{"a.json": JSON, "a.yaml": YAML, "A.YML": YAML, "a": JSON}
	for name, want := range tests {
		if got := CodecFor(name); got != want {
			t.Errorf("CodecFor(%q) = %s, want %s", name, got.Ext(), want.Ext())
		}
	}
}

// --- Manager ---

func TestManagerLoadFailureLeavesEngine(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "sessions"))
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(store.Dir(), "broken.json"), []byte(`{"version":"1.0"}`), 0o644)

	e := newEngine()
	mustAdd(t, e, writeSource(t, dir, "rain.ogg"))
	m := NewManager(store, e)

	if _, err := m.Load(context.Background(), "broken"); !errors.Is(err, ErrSessionIO) {
		t.Errorf("Load broken err = %v", err)
	}
	if _, err := m.Load(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load absent err = %v", err)
	}
	if e.Count() != 1 {
		t.Errorf("Count = %d, want 1 after failed loads", e.Count())
	}
}

func TestManagerEvents(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)
	e := newEngine()
	mustAdd(t, e, writeSource(t, dir, "rain.ogg"))
	l := e.Subscribe()
	defer e.Unsubscribe(l)

	m := NewManager(store, e)
	ctx := context.Background()
	if _, err := m.Save(ctx, "calm"); err != nil {
		t.Fatal(err)
	}
	ev := <-l.C
	if ev.Kind != mixer.EventSessionSaved || ev.Session != "calm" || ev.Count != 1 {
		t.Errorf("saved event = %+v", ev)
	}

	if _, err := m.Load(ctx, "calm"); err != nil {
		t.Fatal(err)
	}
	var loaded *mixer.Event
	for i := 0; i < 8 && loaded == nil; i++ {
		select {
		case ev := <-l.C:
			if ev.Kind == mixer.EventSessionLoaded {
				loaded = &ev
			}
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for session-loaded")
		}
	}
	if loaded == nil || loaded.Count != 1 {
		t.Errorf("loaded event = %+v", loaded)
	}

	info, err := m.Describe(ctx, "calm")
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "calm" || info.TrackCount != 1 {
		t.Errorf("Describe = %+v", info)
	}
}
