// Package api is the HTTP boundary of the mixer: a JSON command API and a
// server-sent events feed of engine events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/satindergrewal/ambimix/internal/fanout"
	"github.com/satindergrewal/ambimix/internal/mixer"
	"github.com/satindergrewal/ambimix/internal/session"
)

// Mixer is the engine surface the API drives.
type Mixer interface {
	AddTrack(source string) (mixer.TrackInfo, error)
	RemoveTrack(id string) error
	Play(id string) error
	Pause(id string) error
	Toggle(id string) error
	Stop(id string) error
	SetVolume(id string, v float64) error
	SetLoop(id string, loop bool) error
	ConfigureAutomation(id string, a mixer.Automation) error
	PlayAll() (int, error)
	StopAll() (int, error)
	ClearAll() (int, error)
	Count() int
	Tracks() []mixer.TrackInfo
	Track(id string) (mixer.TrackInfo, error)
	Subscribe() *fanout.Listener[mixer.Event]
	Unsubscribe(l *fanout.Listener[mixer.Event])
}

// Sessions saves and restores named sessions.
type Sessions interface {
	Save(ctx context.Context, name string) (session.Document, error)
	Load(ctx context.Context, name string) (session.RestoreReport, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
	Describe(ctx context.Context, name string) (session.Info, error)
}

// Library lists and imports sounds.
type Library interface {
	All() map[string][]string
	Import(paths []string) ([]string, error)
}

// Server holds the API's collaborators. Sessions and Library may be nil,
// in which case their routes answer 503. The listener counts are reported
// by status when set.
type Server struct {
	Mixer           Mixer
	Sessions        Sessions
	Library         Library
	HTTPListeners   func() int
	WebRTCListeners func() int
}

// Routes registers every API route on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.status)

	mux.HandleFunc("GET /api/tracks", s.listTracks)
	mux.HandleFunc("POST /api/tracks", s.addTrack)
	mux.HandleFunc("GET /api/tracks/{id}", s.getTrack)
	mux.HandleFunc("DELETE /api/tracks/{id}", s.removeTrack)
	mux.HandleFunc("POST /api/tracks/{id}/play", s.trackCommand(s.Mixer.Play))
	mux.HandleFunc("POST /api/tracks/{id}/pause", s.trackCommand(s.Mixer.Pause))
	mux.HandleFunc("POST /api/tracks/{id}/toggle", s.trackCommand(s.Mixer.Toggle))
	mux.HandleFunc("POST /api/tracks/{id}/stop", s.trackCommand(s.Mixer.Stop))
	mux.HandleFunc("POST /api/tracks/{id}/volume", s.setVolume)
	mux.HandleFunc("POST /api/tracks/{id}/loop", s.setLoop)
	mux.HandleFunc("POST /api/tracks/{id}/automation", s.setAutomation)

	mux.HandleFunc("POST /api/play-all", s.bulk(s.Mixer.PlayAll, "started"))
	mux.HandleFunc("POST /api/stop-all", s.bulk(s.Mixer.StopAll, "stopped"))
	mux.HandleFunc("POST /api/clear", s.bulk(s.Mixer.ClearAll, "removed"))

	mux.HandleFunc("GET /api/library", s.library)
	mux.HandleFunc("POST /api/library/import", s.importSounds)

	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("POST /api/sessions/{name}", s.saveSession)
	mux.HandleFunc("POST /api/sessions/{name}/load", s.loadSession)
	mux.HandleFunc("GET /api/sessions/{name}", s.describeSession)
	mux.HandleFunc("DELETE /api/sessions/{name}", s.deleteSession)

	mux.HandleFunc("GET /api/events", s.events)
}

// Handler returns a mux with only the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Routes(mux)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: encode response: %v", err)
	}
}

// statusFor maps engine and session errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mixer.ErrNotFound), errors.Is(err, mixer.ErrSourceNotFound), errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mixer.ErrDuplicateSource):
		return http.StatusConflict
	case errors.Is(err, mixer.ErrInvalidAutomation), errors.Is(err, mixer.ErrDecodeFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")

func writeError(w http.ResponseWriter, err error) {
	if mixer.Informational(err) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "info": err.Error()})
		return
	}
	writeJSON(w, statusFor(err), map[string]any{"ok": false, "error": err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func unavailable(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": what + " not configured"})
}
