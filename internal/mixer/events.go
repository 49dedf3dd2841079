package mixer

// EventKind names a shell-facing engine notification.
type EventKind string

const (
	EventTrackAdded    EventKind = "track-added"
	EventTrackRemoved  EventKind = "track-removed"
	EventTrackStatus   EventKind = "track-status-changed"
	EventTrackVolume   EventKind = "track-volume-changed"
	EventMixerCleared  EventKind = "mixer-cleared"
	EventSessionSaved  EventKind = "session-saved"
	EventSessionLoaded EventKind = "session-loaded"
)

// Event carries enough state for a shell to update counts and per-track
// widgets without querying the engine. Count is the number of loaded tracks
// after the event.
type Event struct {
	Kind    EventKind  `json:"kind"`
	TrackID string     `json:"trackId,omitempty"`
	Track   *TrackInfo `json:"track,omitempty"`
	Count   int        `json:"count"`
	Removed int        `json:"removed,omitempty"`
	Session string     `json:"session,omitempty"`
	Skipped []string   `json:"skipped,omitempty"`
	Err     string     `json:"error,omitempty"`
}
