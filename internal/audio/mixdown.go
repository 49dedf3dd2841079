package audio

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/satindergrewal/ambimix/internal/mixer"
)

type voiceState int

const (
	voiceIdle voiceState = iota
	voicePlaying
	voicePaused
)

type voice struct {
	path    string
	samples []int16
	ready   bool
	failed  bool

	state  voiceState
	pos    int // next sample index into samples
	volume float64
	gain   float64 // gain applied at the end of the last rendered frame
	loop   bool
	ended  bool
}

// Mixdown is the software output port. It decodes each loaded source in the
// background and renders every playing voice into one stream of 20ms frames.
type Mixdown struct {
	decode DecodeFunc
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	next    mixer.Handle
	voices  map[mixer.Handle]*voice
	onError func(mixer.Handle, error)

	frameCh chan []int16
	acc     []int32
}

var (
	_ mixer.OutputPort    = (*Mixdown)(nil)
	_ mixer.ErrorReporter = (*Mixdown)(nil)
)

// NewMixdown creates a mixdown using decode, DecodeFile if nil.
func NewMixdown(decode DecodeFunc) *Mixdown {
	if decode == nil {
		decode = DecodeFile
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Mixdown{
		decode:  decode,
		ctx:     ctx,
		cancel:  cancel,
		voices:  make(map[mixer.Handle]*voice),
		frameCh: make(chan []int16, 100),
		acc:     make([]int32, FrameSamples),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (m *Mixdown) Frames() <-chan []int16 {
	return m.frameCh
}

// Close aborts pending decodes.
func (m *Mixdown) Close() {
	m.cancel()
}

// OnError registers the callback for asynchronous decode failures.
func (m *Mixdown) OnError(fn func(mixer.Handle, error)) {
	m.mu.Lock()
	m.onError = fn
	m.mu.Unlock()
}

// Load registers path and starts decoding it. Only a missing file fails
// synchronously; decode errors are reported through OnError.
func (m *Mixdown) Load(path string) (mixer.Handle, error) {
	if fi, err := os.Stat(path); err != nil || !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s", mixer.ErrSourceNotFound, path)
	}
	m.mu.Lock()
	m.next++
	h := m.next
	m.voices[h] = &voice{path: path, volume: 1}
	m.mu.Unlock()

	go m.decodeVoice(h, path)
	return h, nil
}

func (m *Mixdown) decodeVoice(h mixer.Handle, path string) {
	samples, err := m.decode(m.ctx, path)
	if err == nil && len(samples) < Channels {
		err = fmt.Errorf("no audio in %s", path)
	}

	m.mu.Lock()
	v, ok := m.voices[h]
	if !ok {
		m.mu.Unlock()
		return
	}
	var report func(mixer.Handle, error)
	if err != nil {
		v.failed = true
		report = m.onError
	} else {
		// Keep whole stereo frames only.
		v.samples = samples[:len(samples)-len(samples)%Channels]
		v.ready = true
	}
	m.mu.Unlock()

	if err != nil {
		log.Printf("Decode failed %s: %v", path, err)
		if report != nil {
			report(h, fmt.Errorf("%w: %s: %v", mixer.ErrDecodeFailed, path, err))
		}
		return
	}
	log.Printf("Decoded %s (%.1fs)", path, float64(len(samples)/Channels)/SampleRate)
}

func (m *Mixdown) with(h mixer.Handle, fn func(v *voice)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.voices[h]; ok {
		fn(v)
	}
}

// Play starts h from the beginning.
func (m *Mixdown) Play(h mixer.Handle, volume float64, loop bool) {
	m.with(h, func(v *voice) {
		v.state = voicePlaying
		v.pos = 0
		v.volume = volume
		v.gain = volume
		v.loop = loop
		v.ended = false
	})
}

// Pause holds a playing voice at its position.
func (m *Mixdown) Pause(h mixer.Handle) {
	m.with(h, func(v *voice) {
		if v.state == voicePlaying {
			v.state = voicePaused
		}
	})
}

// Resume continues a paused voice.
func (m *Mixdown) Resume(h mixer.Handle) {
	m.with(h, func(v *voice) {
		if v.state == voicePaused {
			v.state = voicePlaying
		}
	})
}

// Stop silences the voice and rewinds it. The decoded samples are kept
// until Release.
func (m *Mixdown) Stop(h mixer.Handle) {
	m.with(h, func(v *voice) {
		v.state = voiceIdle
		v.pos = 0
		v.ended = false
	})
}

// SetVolume sets the voice gain. Rendering ramps to it over one frame.
func (m *Mixdown) SetVolume(h mixer.Handle, volume float64) {
	m.with(h, func(v *voice) { v.volume = volume })
}

// SetLoop sets whether the voice wraps at end of file. Enabling it on a
// voice that already ran out restarts it.
func (m *Mixdown) SetLoop(h mixer.Handle, loop bool) {
	m.with(h, func(v *voice) {
		v.loop = loop
		if loop && v.ended {
			v.ended = false
			v.pos = 0
		}
	})
}

// Release forgets h. A decode still running for it is discarded.
func (m *Mixdown) Release(h mixer.Handle) {
	m.mu.Lock()
	delete(m.voices, h)
	m.mu.Unlock()
}

// Active returns the number of voices currently producing sound.
func (m *Mixdown) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.voices {
		if v.state == voicePlaying && v.ready && !v.ended {
			n++
		}
	}
	return n
}

// RenderFrame mixes one frame from every playing voice and advances them.
// A non-looping voice that runs out goes silent but keeps its state.
func (m *Mixdown) RenderFrame() []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.acc)
	var chunk [FrameSamples]int16
	for _, v := range m.voices {
		if v.state != voicePlaying || !v.ready || v.ended {
			continue
		}
		n := v.fill(chunk[:])
		MixInto(m.acc[:n], chunk[:n], v.gain, v.volume)
		v.gain = v.volume
	}
	frame := make([]int16, FrameSamples)
	Clip(frame, m.acc)
	return frame
}

// fill copies up to len(dst) samples from the voice, wrapping when looping.
// It returns how many samples were written.
func (v *voice) fill(dst []int16) int {
	n := 0
	for n < len(dst) {
		if v.pos >= len(v.samples) {
			if !v.loop {
				v.ended = true
				break
			}
			v.pos = 0
		}
		c := copy(dst[n:], v.samples[v.pos:])
		v.pos += c
		n += c
	}
	return n
}

// Run renders frames at real-time rate. Blocks until ctx is cancelled.
func (m *Mixdown) Run(ctx context.Context) {
	defer close(m.frameCh)
	defer m.cancel()

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		frame := m.RenderFrame()
		select {
		case m.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}
