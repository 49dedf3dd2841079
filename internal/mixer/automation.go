package mixer

import (
	"fmt"
	"math"
	"time"
)

// Mode selects how the interval between automation fires is chosen.
type Mode int

const (
	ModeFixed Mode = iota
	ModeRandom
)

func (m Mode) String() string {
	switch m {
	case ModeFixed:
		return "fixed"
	case ModeRandom:
		return "random"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts "fixed" or "random". An empty string means fixed.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "fixed":
		return ModeFixed, nil
	case "random":
		return ModeRandom, nil
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidAutomation, s)
}

func (m Mode) MarshalText() ([]byte, error) {
	if m != ModeFixed && m != ModeRandom {
		return nil, fmt.Errorf("%w: unknown mode %d", ErrInvalidAutomation, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// TransitionClass is how long a track takes to reach a new automation target.
type TransitionClass int

const (
	TransitionSlow TransitionClass = iota
	TransitionMedium
	TransitionFast
)

// Duration maps the class to its interpolation time.
func (c TransitionClass) Duration() time.Duration {
	switch c {
	case TransitionSlow:
		return 10 * time.Second
	case TransitionFast:
		return 2 * time.Second
	}
	return 5 * time.Second
}

func (c TransitionClass) String() string {
	switch c {
	case TransitionSlow:
		return "slow"
	case TransitionMedium:
		return "medium"
	case TransitionFast:
		return "fast"
	}
	return fmt.Sprintf("TransitionClass(%d)", int(c))
}

// ParseTransitionClass accepts "slow", "medium" or "fast". An empty string means medium.
func ParseTransitionClass(s string) (TransitionClass, error) {
	switch s {
	case "slow":
		return TransitionSlow, nil
	case "", "medium":
		return TransitionMedium, nil
	case "fast":
		return TransitionFast, nil
	}
	return 0, fmt.Errorf("%w: unknown transition class %q", ErrInvalidAutomation, s)
}

func (c TransitionClass) MarshalText() ([]byte, error) {
	if c < TransitionSlow || c > TransitionFast {
		return nil, fmt.Errorf("%w: unknown transition class %d", ErrInvalidAutomation, int(c))
	}
	return []byte(c.String()), nil
}

func (c *TransitionClass) UnmarshalText(b []byte) error {
	v, err := ParseTransitionClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// MaxIntervalSeconds is the longest interval a time.Duration can hold.
const MaxIntervalSeconds = float64(math.MaxInt64) / float64(time.Second)

// Automation configures unattended volume changes for one track.
// IntervalSeconds applies to ModeFixed, MinSeconds/MaxSeconds to ModeRandom.
type Automation struct {
	Enabled         bool            `json:"enabled"`
	Mode            Mode            `json:"mode"`
	IntervalSeconds float64         `json:"intervalSeconds,omitempty"`
	MinSeconds      float64         `json:"minSeconds,omitempty"`
	MaxSeconds      float64         `json:"maxSeconds,omitempty"`
	Transition      TransitionClass `json:"transitionClass"`
}

// Validate checks the config. Interval bounds are only enforced when the
// automation is enabled, so a disabled config may keep stale values.
func (a Automation) Validate() error {
	if a.Mode != ModeFixed && a.Mode != ModeRandom {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidAutomation, int(a.Mode))
	}
	if a.Transition < TransitionSlow || a.Transition > TransitionFast {
		return fmt.Errorf("%w: unknown transition class %d", ErrInvalidAutomation, int(a.Transition))
	}
	if !a.Enabled {
		return nil
	}
	switch a.Mode {
	case ModeFixed:
		if !(a.IntervalSeconds > 0) {
			return fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidAutomation, a.IntervalSeconds)
		}
		if a.IntervalSeconds >= MaxIntervalSeconds {
			return fmt.Errorf("%w: interval %v exceeds %v seconds", ErrInvalidAutomation, a.IntervalSeconds, MaxIntervalSeconds)
		}
	case ModeRandom:
		if !(a.MinSeconds > 0) || !(a.MaxSeconds > 0) {
			return fmt.Errorf("%w: random bounds must be positive, got [%v, %v]", ErrInvalidAutomation, a.MinSeconds, a.MaxSeconds)
		}
		if a.MaxSeconds >= MaxIntervalSeconds {
			return fmt.Errorf("%w: max %v exceeds %v seconds", ErrInvalidAutomation, a.MaxSeconds, MaxIntervalSeconds)
		}
		if a.MinSeconds > a.MaxSeconds {
			return fmt.Errorf("%w: min %v exceeds max %v", ErrInvalidAutomation, a.MinSeconds, a.MaxSeconds)
		}
	}
	return nil
}

// Rand is the randomness the scheduler draws from. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
}

// Scheduler decides when a playing track's automation fires and which
// volume it heads for. Each fire draws the target first, then the next
// interval.
type Scheduler struct {
	rng     Rand
	cadence time.Duration
}

// NewScheduler creates a scheduler whose ramps are sampled every cadence.
func NewScheduler(rng Rand, cadence time.Duration) *Scheduler {
	if cadence <= 0 {
		cadence = DefaultTickInterval
	}
	return &Scheduler{rng: rng, cadence: cadence}
}

// NextFire returns when automation a fires next, counted from now.
func (s *Scheduler) NextFire(a Automation, now time.Time) time.Time {
	secs := a.IntervalSeconds
	if a.Mode == ModeRandom {
		secs = a.MinSeconds + s.rng.Float64()*(a.MaxSeconds-a.MinSeconds)
	}
	// Saturate instead of wrapping into the past.
	d := secs * float64(time.Second)
	if d >= float64(math.MaxInt64) {
		return now.Add(time.Duration(math.MaxInt64))
	}
	return now.Add(time.Duration(d))
}

// Target picks a new volume uniformly in [0, 1].
func (s *Scheduler) Target() float64 {
	return clampVolume(s.rng.Float64())
}

// Fire starts a new ramp on t if its automation is due at now, and
// reschedules it. It reports whether the track fired.
func (s *Scheduler) Fire(t *Track, now time.Time) bool {
	if !t.automation.Enabled || t.status != Playing || t.nextFireAt.IsZero() || now.Before(t.nextFireAt) {
		return false
	}
	target := s.Target()
	t.ramp = newRamp(t.volume, target, s.steps(t.automation.Transition))
	t.nextFireAt = s.NextFire(t.automation, now)
	return true
}

func (s *Scheduler) steps(c TransitionClass) int {
	n := int(math.Ceil(float64(c.Duration()) / float64(s.cadence)))
	if n < 1 {
		n = 1
	}
	return n
}

// ramp is a linear volume transition advanced once per engine tick.
type ramp struct {
	from, to float64
	step     int
	steps    int
}

func newRamp(from, to float64, steps int) *ramp {
	return &ramp{from: from, to: to, steps: steps}
}

// advance moves one step and returns the new volume and whether the ramp is done.
func (r *ramp) advance() (float64, bool) {
	r.step++
	if r.step >= r.steps {
		return r.to, true
	}
	return r.from + (r.to-r.from)*float64(r.step)/float64(r.steps), false
}

func clampVolume(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
