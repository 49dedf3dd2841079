package mixer

import (
	"errors"
	"math"
	"testing"
	"time"
)

// --- Modes and classes ---

func TestTransitionDurations(t *testing.T) {
	tests := []struct {
		c    TransitionClass
		want time.Duration
	}{
		{TransitionSlow, 10 * time.Second},
		{TransitionMedium, 5 * time.Second},
		{TransitionFast, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := tt.c.Duration(); got != tt.want {
			t.Errorf("%v.Duration() = %v, want %v", tt.c, got, tt.want)
		}
	}
}

func TestParseNames(t *testing.T) {
	for _, name := range []string{"slow", "medium", "fast"} {
		c, err := ParseTransitionClass(name)
		if err != nil || c.String() != name {
			t.Errorf("ParseTransitionClass(%q) = %v, %v", name, c, err)
		}
	}
	if c, _ := ParseTransitionClass(""); c != TransitionMedium {
		t.Errorf("Empty transition class = %v, want medium", c)
	}
	if _, err := ParseTransitionClass("glacial"); err == nil {
		t.Error("ParseTransitionClass accepted an unknown class")
	}
	for _, name := range []string{"fixed", "random"} {
		m, err := ParseMode(name)
		if err != nil || m.String() != name {
			t.Errorf("ParseMode(%q) = %v, %v", name, m, err)
		}
	}
	if _, err := ParseMode("sometimes"); err == nil {
		t.Error("ParseMode accepted an unknown mode")
	}
}

// --- Scheduling ---

func TestNextFireFixed(t *testing.T) {
	s := NewScheduler(&seqRand{vals: []float64{0.9}}, DefaultTickInterval)
	a := Automation{Enabled: true, Mode: ModeFixed, IntervalSeconds: 2.5}
	if got, want := s.NextFire(a, t0), t0.Add(2500*time.Millisecond); !got.Equal(want) {
		t.Errorf("NextFire = %v, want %v", got, want)
	}
}

func TestNextFireRandomRerolls(t *testing.T) {
	s := NewScheduler(&seqRand{vals: []float64{0, 0.5, 1}}, DefaultTickInterval)
	a := Automation{Enabled: true, Mode: ModeRandom, MinSeconds: 2, MaxSeconds: 8}
	for _, want := range []time.Duration{2 * time.Second, 5 * time.Second, 8 * time.Second} {
		if got := s.NextFire(a, t0).Sub(t0); got != want {
			t.Errorf("NextFire offset = %v, want %v", got, want)
		}
	}
}

func TestFireOnlyWhenDue(t *testing.T) {
	// First draw is the target, second the next interval.
	s := NewScheduler(&seqRand{vals: []float64{0.25}}, DefaultTickInterval)
	tr := newTestTrack(t, newFakePort())
	tr.sched = s
	tr.ConfigureAutomation(Automation{Enabled: true, Mode: ModeFixed, IntervalSeconds: 5, Transition: TransitionFast}, t0)
	tr.Play(t0)

	if s.Fire(tr, t0.Add(4*time.Second)) {
		t.Fatal("Fired before due")
	}
	if !s.Fire(tr, t0.Add(5*time.Second)) {
		t.Fatal("Did not fire at due time")
	}
	if tr.ramp == nil || tr.ramp.to != 0.25 || tr.ramp.steps != 20 {
		t.Errorf("ramp = %+v, want to=0.25 steps=20", tr.ramp)
	}
	if want := t0.Add(10 * time.Second); !tr.nextFireAt.Equal(want) {
		t.Errorf("nextFireAt = %v, want %v", tr.nextFireAt, want)
	}
}

func TestFireSkipsPausedAndDisabled(t *testing.T) {
	s := NewScheduler(&seqRand{vals: []float64{0.25}}, DefaultTickInterval)
	tr := newTestTrack(t, newFakePort())
	tr.sched = s
	tr.ConfigureAutomation(Automation{Enabled: true, Mode: ModeFixed, IntervalSeconds: 1}, t0)
	tr.Play(t0)
	tr.Pause()
	if s.Fire(tr, t0.Add(time.Hour)) {
		t.Error("Fired on a paused track")
	}
	tr.Play(t0)
	tr.ConfigureAutomation(Automation{Enabled: false}, t0)
	if s.Fire(tr, t0.Add(time.Hour)) {
		t.Error("Fired with automation disabled")
	}
}

func TestValidateRejectsOverflowingIntervals(t *testing.T) {
	tests := []Automation{
		{Enabled: true, Mode: ModeFixed, IntervalSeconds: 1e11},
		{Enabled: true, Mode: ModeFixed, IntervalSeconds: math.Inf(1)},
		{Enabled: true, Mode: ModeRandom, MinSeconds: 1, MaxSeconds: 1e11},
	}
	for _, a := range tests {
		if err := a.Validate(); !errors.Is(err, ErrInvalidAutomation) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidAutomation", a, err)
		}
	}
	ok := Automation{Enabled: true, Mode: ModeFixed, IntervalSeconds: 1e9}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate(1e9s) = %v, want nil", err)
	}
}

func TestLongIntervalDoesNotFireEveryTick(t *testing.T) {
	s := NewScheduler(&seqRand{vals: []float64{0.5}}, DefaultTickInterval)
	tr := newTestTrack(t, newFakePort())
	tr.sched = s
	if err := tr.ConfigureAutomation(Automation{Enabled: true, Mode: ModeFixed, IntervalSeconds: 9e9}, t0); err != nil {
		t.Fatal(err)
	}
	tr.Play(t0)
	if !tr.nextFireAt.After(t0) {
		t.Fatalf("nextFireAt = %v, want after %v", tr.nextFireAt, t0)
	}
	fires := 0
	for i := 1; i <= 10; i++ {
		if s.Fire(tr, t0.Add(time.Duration(i)*DefaultTickInterval)) {
			fires++
		}
	}
	if fires != 0 {
		t.Errorf("Fires in 1s = %d, want 0", fires)
	}
}

func TestNextFireSaturates(t *testing.T) {
	s := NewScheduler(&seqRand{vals: []float64{0}}, DefaultTickInterval)
	a := Automation{Enabled: true, Mode: ModeFixed, IntervalSeconds: 1e12}
	if got := s.NextFire(a, t0); !got.After(t0) {
		t.Errorf("NextFire = %v, want after %v", got, t0)
	}
}

// --- Ramp ---

func TestRampLinear(t *testing.T) {
	r := newRamp(0, 1, 4)
	for i, want := range []float64{0.25, 0.5, 0.75, 1} {
		got, done := r.advance()
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("step %d = %v, want %v", i+1, got, want)
		}
		if done != (i == 3) {
			t.Errorf("step %d done = %v", i+1, done)
		}
	}
}

func TestStepsAtCadence(t *testing.T) {
	s := NewScheduler(&seqRand{vals: []float64{0}}, 100*time.Millisecond)
	if got := s.steps(TransitionSlow); got != 100 {
		t.Errorf("Slow steps = %d, want 100", got)
	}
	s = NewScheduler(&seqRand{vals: []float64{0}}, 3*time.Second)
	if got := s.steps(TransitionFast); got != 1 {
		t.Errorf("Fast steps at coarse cadence = %d, want 1", got)
	}
}
