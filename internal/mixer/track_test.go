package mixer

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestTrack(t *testing.T, port OutputPort, vals ...float64) *Track {
	t.Helper()
	if len(vals) == 0 {
		vals = []float64{0.5}
	}
	src := writeSource(t, t.TempDir(), "rain.wav")
	tr, err := NewTrack("t1", src, port, NewScheduler(&seqRand{vals: vals}, DefaultTickInterval))
	if err != nil {
		t.Fatalf("NewTrack: %v", err)
	}
	return tr
}

// --- Create ---

func TestNewTrackDefaults(t *testing.T) {
	tr := newTestTrack(t, newFakePort())
	info := tr.Info()
	if info.Name != "rain" {
		t.Errorf("Name = %q, want rain", info.Name)
	}
	if !filepath.IsAbs(info.Source) {
		t.Errorf("Source = %q, want absolute path", info.Source)
	}
	if info.Status != Stopped {
		t.Errorf("Status = %v, want stopped", info.Status)
	}
	if info.Volume != 1 {
		t.Errorf("Volume = %v, want 1", info.Volume)
	}
}

func TestNewTrackMissingSource(t *testing.T) {
	for _, src := range []string{"", filepath.Join(t.TempDir(), "nope.wav"), t.TempDir()} {
		_, err := NewTrack("x", src, newFakePort(), NewScheduler(&seqRand{vals: []float64{0}}, 0))
		if !errors.Is(err, ErrSourceNotFound) {
			t.Errorf("NewTrack(%q) error = %v, want ErrSourceNotFound", src, err)
		}
	}
}

// --- Volume ---

func TestSetVolumeClamps(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{7, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
	}
	tr := newTestTrack(t, newFakePort())
	for _, tt := range tests {
		tr.SetVolume(tt.in)
		if got := tr.Volume(); got != tt.want {
			t.Errorf("SetVolume(%v) stored %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetVolumeForwardsOnlyWhenLoaded(t *testing.T) {
	port := newFakePort()
	tr := newTestTrack(t, port)

	tr.SetVolume(0.3)
	if port.count("volume") != 0 {
		t.Errorf("Stopped track forwarded volume to port")
	}

	if err := tr.Play(t0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	play, _ := port.last("play")
	if play.volume != 0.3 {
		t.Errorf("Play volume = %v, want 0.3", play.volume)
	}

	tr.SetVolume(0.6)
	tr.Pause()
	tr.SetVolume(0.7)
	if got := port.count("volume"); got != 2 {
		t.Errorf("Port volume calls = %d, want 2 (playing + paused)", got)
	}
}

// --- Play / Pause / Stop ---

func TestPlayIdempotent(t *testing.T) {
	port := newFakePort()
	tr := newTestTrack(t, port)

	for i := 0; i < 2; i++ {
		if err := tr.Play(t0); err != nil {
			t.Fatalf("Play #%d: %v", i+1, err)
		}
	}
	if port.count("load") != 1 || port.count("play") != 1 {
		t.Errorf("load=%d play=%d, want exactly one each", port.count("load"), port.count("play"))
	}
	if tr.Status() != Playing {
		t.Errorf("Status = %v, want playing", tr.Status())
	}
}

func TestPauseResume(t *testing.T) {
	port := newFakePort()
	tr := newTestTrack(t, port)

	if tr.Pause() {
		t.Error("Pause from Stopped reported a change")
	}
	tr.Play(t0)
	if !tr.Pause() || tr.Status() != Paused {
		t.Fatalf("Pause from Playing: status = %v", tr.Status())
	}
	if tr.Pause() {
		t.Error("Pause from Paused reported a change")
	}
	tr.Play(t0)
	if port.count("resume") != 1 || port.count("load") != 1 {
		t.Errorf("resume=%d load=%d, want resume 1 load 1", port.count("resume"), port.count("load"))
	}
	if tr.Status() != Playing {
		t.Errorf("Status = %v, want playing", tr.Status())
	}
}

func TestStopReleasesHandle(t *testing.T) {
	port := newFakePort()
	tr := newTestTrack(t, port)
	tr.Play(t0)

	if !tr.Stop() {
		t.Error("Stop from Playing reported no change")
	}
	if port.count("stop") != 1 || port.count("release") != 1 {
		t.Errorf("stop=%d release=%d, want 1 each", port.count("stop"), port.count("release"))
	}
	if tr.Stop() {
		t.Error("Stop from Stopped reported a change")
	}

	tr.Play(t0)
	if port.count("load") != 2 {
		t.Errorf("Play after Stop load count = %d, want 2", port.count("load"))
	}
}

func TestPlayLoadFailureStaysStopped(t *testing.T) {
	port := newFakePort()
	tr := newTestTrack(t, port)
	port.loadErrs[tr.Source()] = errors.New("corrupt header")

	err := tr.Play(t0)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("Play error = %v, want ErrDecodeFailed", err)
	}
	if tr.Status() != Stopped {
		t.Errorf("Status = %v, want stopped", tr.Status())
	}
}

func TestSetLoopForwardsWhenLoaded(t *testing.T) {
	port := newFakePort()
	tr := newTestTrack(t, port)
	tr.SetLoop(true)
	tr.Play(t0)
	play, _ := port.last("play")
	if !play.loop {
		t.Error("Play did not carry loop=true")
	}
	tr.SetLoop(false)
	if c, ok := port.last("loop"); !ok || c.loop {
		t.Errorf("SetLoop(false) not forwarded: %+v", c)
	}
}

// --- Automation config ---

func TestConfigureAutomationValidation(t *testing.T) {
	tests := []struct {
		name string
		a    Automation
		ok   bool
	}{
		{"fixed ok", Automation{Enabled: true, Mode: ModeFixed, IntervalSeconds: 5}, true},
		{"fixed zero", Automation{Enabled: true, Mode: ModeFixed}, false},
		{"fixed negative", Automation{Enabled: true, Mode: ModeFixed, IntervalSeconds: -1}, false},
		{"random ok", Automation{Enabled: true, Mode: ModeRandom, MinSeconds: 2, MaxSeconds: 8}, true},
		{"random equal", Automation{Enabled: true, Mode: ModeRandom, MinSeconds: 3, MaxSeconds: 3}, true},
		{"random inverted", Automation{Enabled: true, Mode: ModeRandom, MinSeconds: 8, MaxSeconds: 2}, false},
		{"random zero min", Automation{Enabled: true, Mode: ModeRandom, MinSeconds: 0, MaxSeconds: 2}, false},
		{"disabled stale", Automation{Enabled: false, Mode: ModeFixed}, true},
		{"bad mode", Automation{Mode: Mode(9)}, false},
		{"bad class", Automation{Transition: TransitionClass(9)}, false},
	}
	for _, tt := range tests {
		tr := newTestTrack(t, newFakePort())
		err := tr.ConfigureAutomation(tt.a, t0)
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidAutomation) {
			t.Errorf("%s: error = %v, want ErrInvalidAutomation", tt.name, err)
		}
	}
}

func TestConfigureAutomationSchedulesOnlyWhilePlaying(t *testing.T) {
	tr := newTestTrack(t, newFakePort())
	a := Automation{Enabled: true, Mode: ModeFixed, IntervalSeconds: 5}

	tr.ConfigureAutomation(a, t0)
	if !tr.nextFireAt.IsZero() {
		t.Errorf("Stopped track scheduled at %v", tr.nextFireAt)
	}

	tr.Play(t0)
	if want := t0.Add(5 * time.Second); !tr.nextFireAt.Equal(want) {
		t.Errorf("nextFireAt after Play = %v, want %v", tr.nextFireAt, want)
	}

	later := t0.Add(time.Second)
	tr.ConfigureAutomation(a, later)
	if want := later.Add(5 * time.Second); !tr.nextFireAt.Equal(want) {
		t.Errorf("nextFireAt after reconfigure = %v, want %v", tr.nextFireAt, want)
	}
}

func TestStopCancelsAutomation(t *testing.T) {
	tr := newTestTrack(t, newFakePort())
	tr.ConfigureAutomation(Automation{Enabled: true, Mode: ModeFixed, IntervalSeconds: 1}, t0)
	tr.Play(t0)
	tr.ramp = newRamp(0.2, 0.9, 10)

	tr.Stop()
	if tr.ramp != nil || !tr.nextFireAt.IsZero() {
		t.Errorf("Stop left ramp=%v nextFireAt=%v", tr.ramp, tr.nextFireAt)
	}
}
