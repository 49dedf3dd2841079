package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/ambimix/internal/audio"
)

type peer struct {
	pc     *webrtc.PeerConnection
	closed chan struct{}
	once   sync.Once
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.closed)
		p.pc.Close()
	})
}

// WebRTCHandler serves WebRTC SDP negotiation for low-latency Opus streaming.
type WebRTCHandler struct {
	frames *Frames
	label  string

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]*peer
}

// NewWebRTCHandler creates a WebRTC stream handler. label names the stream id
// announced to peers.
func NewWebRTCHandler(frames *Frames, label string) *WebRTCHandler {
	return &WebRTCHandler{
		frames: frames,
		label:  label,
		peers:  make(map[*webrtc.PeerConnection]*peer),
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	answer, p, track, status, err := h.negotiate(offer)
	if err != nil {
		log.Printf("WebRTC negotiation failed: %v", err)
		http.Error(w, err.Error(), status)
		return
	}

	h.mu.Lock()
	h.peers[p.pc] = p
	n := len(h.peers)
	h.mu.Unlock()
	log.Printf("WebRTC peer connected (total: %d)", n)

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			h.removePeer(p)
		}
	})
	go h.streamToPeer(p, track)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}

// negotiate answers offer with a peer carrying one Opus track. On failure it
// returns the HTTP status to report.
func (h *WebRTCHandler) negotiate(offer webrtc.SessionDescription) (*webrtc.SessionDescription, *peer, *webrtc.TrackLocalStaticSample, int, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, nil, nil, http.StatusInternalServerError, err
	}
	fail := func(status int, err error) (*webrtc.SessionDescription, *peer, *webrtc.TrackLocalStaticSample, int, error) {
		pc.Close()
		return nil, nil, nil, status, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		h.label,
	)
	if err != nil {
		return fail(http.StatusInternalServerError, err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fail(http.StatusInternalServerError, err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail(http.StatusBadRequest, err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(http.StatusInternalServerError, err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(http.StatusInternalServerError, err)
	}
	<-gatherComplete

	return pc.LocalDescription(), &peer{pc: pc, closed: make(chan struct{})}, track, 0, nil
}

func (h *WebRTCHandler) streamToPeer(p *peer, track *webrtc.TrackLocalStaticSample) {
	listener := h.frames.Subscribe()
	defer h.frames.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		log.Printf("WebRTC: opus encoder error: %v", err)
		h.removePeer(p)
		return
	}
	enc.SetBitrate(128000)

	opusBuf := make([]byte, 4000)
	for {
		select {
		case <-p.closed:
			return
		case <-listener.Done():
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			n, err := enc.Encode(frame, opusBuf)
			if err != nil {
				log.Printf("WebRTC: opus encode error: %v", err)
				continue
			}
			if err := track.WriteSample(media.Sample{
				Data:     opusBuf[:n],
				Duration: audio.FrameDuration,
			}); err != nil {
				h.removePeer(p)
				return
			}
		}
	}
}

func (h *WebRTCHandler) removePeer(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p.pc]
	delete(h.peers, p.pc)
	n := len(h.peers)
	h.mu.Unlock()
	p.close()
	if ok {
		log.Printf("WebRTC peer disconnected (remaining: %d)", n)
	}
}

// Close drops every connected peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		h.removePeer(p)
	}
}
