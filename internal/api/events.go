package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// keepAlive is how often an idle event stream sends a comment line.
const keepAlive = 15 * time.Second

// events streams engine events as server-sent events until the client
// disconnects. Each event is named by its kind.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	l := s.Mixer.Subscribe()
	defer s.Mixer.Unsubscribe(l)

	fmt.Fprintf(w, "event: hello\ndata: {\"count\":%d}\n\n", s.Mixer.Count())
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-l.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-l.C:
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("API: encode event %s: %v", ev.Kind, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
