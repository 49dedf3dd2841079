// Package stream serves the mixdown to remote listeners over chunked HTTP
// (MP3) and WebRTC (Opus).
package stream

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strconv"
	"sync/atomic"

	"github.com/satindergrewal/ambimix/internal/audio"
	"github.com/satindergrewal/ambimix/internal/fanout"
)

// Frames is the shared PCM frame feed both handlers subscribe to.
type Frames = fanout.Broadcaster[[]int16]

// HTTPHandler serves a chunked MP3 audio stream via HTTP.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	frames  *Frames
	name    string
	bitrate int // kbps

	active atomic.Int64
}

// NewHTTPHandler creates an HTTP stream handler announcing itself as name.
func NewHTTPHandler(frames *Frames, name string) *HTTPHandler {
	return &HTTPHandler{frames: frames, name: name, bitrate: 192}
}

// encoderArgs builds the FFmpeg command line for PCM stdin -> MP3 stdout.
func (h *HTTPHandler) encoderArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(h.bitrate) + "k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

// ListenerCount returns the number of connected HTTP listeners.
func (h *HTTPHandler) ListenerCount() int {
	return int(h.active.Load())
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", h.encoderArgs()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("HTTP stream: stdin pipe error: %v", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("HTTP stream: stdout pipe error: %v", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("HTTP stream: ffmpeg start error: %v", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", h.name)

	listener := h.frames.Subscribe()
	defer h.frames.Unsubscribe(listener)

	n := h.active.Add(1)
	defer h.active.Add(-1)

	log.Printf("HTTP listener connected (total: %d)", n)
	defer log.Printf("HTTP listener disconnected")

	go feedPCM(ctx, listener, stdin)

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("HTTP stream: ffmpeg read error: %v", err)
			}
			break
		}
	}

	cancel()
	cmd.Wait()
}

// feedPCM writes frames from l to w until either side goes away.
func feedPCM(ctx context.Context, l *fanout.Listener[[]int16], w io.WriteCloser) {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case frame, ok := <-l.C:
			if !ok {
				return
			}
			if _, err := w.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}
