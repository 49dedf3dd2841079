// Package control maps a MIDI control surface onto mixer commands. Faders
// set track volume, channel buttons toggle and stop tracks, and the
// transport buttons drive play-all and stop-all.
package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/satindergrewal/ambimix/internal/fanout"
	"github.com/satindergrewal/ambimix/internal/mixer"
)

// Controller and note numbers, X-Touch style layout.
const (
	CCFaderFirst = 70
	CCFaderLast  = 77

	NoteSelectFirst = 0 // toggle play/pause
	NoteSelectLast  = 7
	NoteStopFirst   = 8
	NoteStopLast    = 15

	NoteTransportStop = 93
	NoteTransportPlay = 94

	Strips = CCFaderLast - CCFaderFirst + 1
)

// Mixer is the subset of the engine the surface drives.
type Mixer interface {
	Tracks() []mixer.TrackInfo
	SetVolume(id string, v float64) error
	Toggle(id string) error
	Stop(id string) error
	PlayAll() (int, error)
	StopAll() (int, error)
}

// Surface translates MIDI messages into engine commands. Strip i controls
// the i-th loaded track.
type Surface struct {
	mixer Mixer
	send  func(midi.Message) error
}

// NewSurface creates a surface driving m.
func NewSurface(m Mixer) *Surface {
	return &Surface{mixer: m}
}

// FindInPort returns the first input port whose name contains substr.
func FindInPort(substr string) (drivers.In, error) {
	lower := strings.ToLower(substr)
	for _, port := range midi.GetInPorts() {
		if strings.Contains(strings.ToLower(port.String()), lower) {
			return port, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input port matching %q", substr)
}

// FindOutPort returns the first output port whose name contains substr.
func FindOutPort(substr string) (drivers.Out, error) {
	lower := strings.ToLower(substr)
	for _, port := range midi.GetOutPorts() {
		if strings.Contains(strings.ToLower(port.String()), lower) {
			return port, nil
		}
	}
	return nil, fmt.Errorf("no MIDI output port matching %q", substr)
}

// Listen attaches the surface to the input port matching substr and, when
// one exists, the output port of the same name for fader and LED feedback.
// The returned func detaches it.
func (s *Surface) Listen(substr string) (func(), error) {
	in, err := FindInPort(substr)
	if err != nil {
		return nil, err
	}
	if out, err := FindOutPort(substr); err == nil {
		if send, err := midi.SendTo(out); err == nil {
			s.send = send
		} else {
			log.Printf("MIDI feedback disabled: %v", err)
		}
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		s.Handle(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", in, err)
	}
	log.Printf("MIDI control surface listening on %s", in)
	return stop, nil
}

// Handle applies one message. Messages outside the mapping are ignored.
func (s *Surface) Handle(msg midi.Message) {
	var channel, key, value uint8
	switch {
	case msg.GetControlChange(&channel, &key, &value):
		if key >= CCFaderFirst && key <= CCFaderLast {
			s.onStrip(int(key-CCFaderFirst), func(id string) error {
				return s.mixer.SetVolume(id, float64(value)/127)
			})
		}
	case msg.GetNoteOn(&channel, &key, &value):
		if value == 0 {
			return
		}
		switch {
		case key <= NoteSelectLast:
			s.onStrip(int(key-NoteSelectFirst), s.mixer.Toggle)
		case key >= NoteStopFirst && key <= NoteStopLast:
			s.onStrip(int(key-NoteStopFirst), s.mixer.Stop)
		case key == NoteTransportPlay:
			s.report("play all", discardCount(s.mixer.PlayAll()))
		case key == NoteTransportStop:
			s.report("stop all", discardCount(s.mixer.StopAll()))
		}
	}
}

func (s *Surface) onStrip(i int, fn func(id string) error) {
	tracks := s.mixer.Tracks()
	if i >= len(tracks) {
		return
	}
	s.report(tracks[i].Name, fn(tracks[i].ID))
}

func (s *Surface) report(what string, err error) {
	if err == nil || mixer.Informational(err) {
		return
	}
	log.Printf("MIDI %s: %v", what, err)
}

func discardCount(_ int, err error) error { return err }

// Follow mirrors engine events back to the surface: fader positions for
// volume and select LEDs for playing tracks. It returns when ctx is done or
// the listener is unsubscribed. Without an output port it only drains.
func (s *Surface) Follow(ctx context.Context, l *fanout.Listener[mixer.Event]) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case ev := <-l.C:
			if s.send == nil {
				continue
			}
			if err := s.feedback(ev); err != nil && !errors.Is(err, errNoStrip) {
				log.Printf("MIDI feedback: %v", err)
			}
		}
	}
}

var errNoStrip = errors.New("track has no strip")

func (s *Surface) feedback(ev mixer.Event) error {
	tracks := s.mixer.Tracks()
	switch ev.Kind {
	case mixer.EventTrackVolume, mixer.EventTrackStatus:
		for i, t := range tracks {
			if i >= Strips {
				break
			}
			if t.ID != ev.TrackID {
				continue
			}
			return s.sendStrip(i, t)
		}
		return errNoStrip
	case mixer.EventTrackAdded, mixer.EventTrackRemoved, mixer.EventMixerCleared, mixer.EventSessionLoaded:
		for i := 0; i < Strips; i++ {
			var t mixer.TrackInfo
			if i < len(tracks) {
				t = tracks[i]
			}
			if err := s.sendStrip(i, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Surface) sendStrip(i int, t mixer.TrackInfo) error {
	fader := uint8(t.Volume*127 + 0.5)
	led := uint8(0)
	if t.Status == mixer.Playing {
		led = 127
	}
	if err := s.send(midi.ControlChange(0, uint8(CCFaderFirst+i), fader)); err != nil {
		return err
	}
	return s.send(midi.NoteOn(0, uint8(NoteSelectFirst+i), led))
}
