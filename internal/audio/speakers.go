package audio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// frameReader adapts a channel of PCM frames to the io.Reader oto pulls
// from. When no frame is waiting it emits silence instead of blocking the
// device callback.
type frameReader struct {
	frames <-chan []int16

	mu      sync.Mutex
	pending []byte
	closed  bool
}

func (r *frameReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for n < len(p) {
		if len(r.pending) == 0 {
			if r.closed {
				break
			}
			select {
			case frame, ok := <-r.frames:
				if !ok {
					r.closed = true
					continue
				}
				r.pending = SamplesToBytes(frame)
			default:
			}
			if len(r.pending) == 0 {
				break
			}
		}
		c := copy(p[n:], r.pending)
		r.pending = r.pending[c:]
		n += c
	}
	// Pad underruns with silence, keeping whole samples.
	clear(p[n:])
	return len(p), nil
}

// Speakers plays frames on the default output device.
type Speakers struct {
	ctx    *oto.Context
	player *oto.Player
}

// OpenSpeakers opens the output device at SampleRate, stereo, 16-bit.
func OpenSpeakers() (*Speakers, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready
	return &Speakers{ctx: ctx}, nil
}

// Run plays frames until ctx is cancelled or frames is closed.
func (s *Speakers) Run(ctx context.Context, frames <-chan []int16) {
	s.player = s.ctx.NewPlayer(&frameReader{frames: frames})
	s.player.Play()
	log.Printf("Speakers started (%d Hz, %d ch)", SampleRate, Channels)

	<-ctx.Done()
	if err := s.player.Close(); err != nil {
		log.Printf("Speakers close: %v", err)
	}
	log.Printf("Speakers stopped")
}
