package api

import (
	"fmt"
	"net/http"

	"github.com/satindergrewal/ambimix/internal/mixer"
	"github.com/satindergrewal/ambimix/internal/session"
)

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	tracks := s.Mixer.Tracks()
	playing := 0
	for _, t := range tracks {
		if t.Status == mixer.Playing {
			playing++
		}
	}
	body := map[string]any{
		"tracks":  len(tracks),
		"playing": playing,
	}
	if s.HTTPListeners != nil {
		body["httpListeners"] = s.HTTPListeners()
	}
	if s.WebRTCListeners != nil {
		body["webrtcListeners"] = s.WebRTCListeners()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tracks": s.Mixer.Tracks()})
}

func (s *Server) addTrack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	info, err := s.Mixer.AddTrack(req.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) getTrack(w http.ResponseWriter, r *http.Request) {
	info, err := s.Mixer.Track(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) removeTrack(w http.ResponseWriter, r *http.Request) {
	if err := s.Mixer.RemoveTrack(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": s.Mixer.Count()})
}

// trackCommand answers with the track's state after fn.
func (s *Server) trackCommand(fn func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := fn(id); err != nil {
			writeError(w, err)
			return
		}
		s.getTrack(w, r)
	}
}

func (s *Server) setVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Volume == nil {
		writeError(w, fmt.Errorf("%w: volume required", errBadRequest))
		return
	}
	s.trackCommand(func(id string) error { return s.Mixer.SetVolume(id, *req.Volume) })(w, r)
}

func (s *Server) setLoop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Loop bool `json:"loop"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.trackCommand(func(id string) error { return s.Mixer.SetLoop(id, req.Loop) })(w, r)
}

// setAutomation accepts the session document's automation shape, so a
// missing transition class means medium and null disables automation.
func (s *Server) setAutomation(w http.ResponseWriter, r *http.Request) {
	var snap *session.AutomationSnapshot
	if err := decode(r, &snap); err != nil {
		writeError(w, err)
		return
	}
	a, err := snap.Automation()
	if err != nil {
		writeError(w, err)
		return
	}
	s.trackCommand(func(id string) error { return s.Mixer.ConfigureAutomation(id, a) })(w, r)
}

// bulk wraps a multi-track operation. Partial failures still report the
// count alongside the joined error.
func (s *Server) bulk(fn func() (int, error), key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := fn()
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, key: n, "count": s.Mixer.Count()})
		case n > 0 && !mixer.Informational(err):
			writeJSON(w, http.StatusMultiStatus, map[string]any{"ok": false, key: n, "error": err.Error()})
		default:
			writeError(w, err)
		}
	}
}

func (s *Server) library(w http.ResponseWriter, r *http.Request) {
	if s.Library == nil {
		unavailable(w, "library")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.Library.All()})
}

func (s *Server) importSounds(w http.ResponseWriter, r *http.Request) {
	if s.Library == nil {
		unavailable(w, "library")
		return
	}
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	imported, err := s.Library.Import(req.Paths)
	body := map[string]any{"ok": err == nil, "count": len(imported), "imported": imported}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		unavailable(w, "sessions")
		return
	}
	names, err := s.Sessions.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": names})
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		unavailable(w, "sessions")
		return
	}
	doc, err := s.Sessions.Save(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "trackCount": len(doc.Tracks), "metadata": doc.Metadata})
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		unavailable(w, "sessions")
		return
	}
	report, err := s.Sessions.Load(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if report.Skipped == nil {
		report.Skipped = []session.Skipped{}
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) describeSession(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		unavailable(w, "sessions")
		return
	}
	info, err := s.Sessions.Describe(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		unavailable(w, "sessions")
		return
	}
	if err := s.Sessions.Delete(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
