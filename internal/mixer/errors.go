package mixer

import "errors"

var (
	// ErrSourceNotFound means the audio file does not exist or is not a regular file.
	ErrSourceNotFound = errors.New("source not found")
	// ErrDuplicateSource means another track already references the same resolved path.
	ErrDuplicateSource = errors.New("duplicate source")
	// ErrNotFound means no track has the requested id.
	ErrNotFound = errors.New("track not found")
	// ErrEmptyMixer is informational: the operation had no tracks to act on.
	ErrEmptyMixer = errors.New("mixer is empty")
	// ErrAllAlreadyPlaying is informational: PlayAll found nothing to start.
	ErrAllAlreadyPlaying = errors.New("all tracks already playing")
	// ErrDecodeFailed is reported by the output port; the track stays Stopped.
	ErrDecodeFailed = errors.New("decode failed")
	// ErrInvalidAutomation rejects an automation config at configure time.
	ErrInvalidAutomation = errors.New("invalid automation")
)

// Informational reports whether err is one of the conditions a shell should
// show as a notice rather than a failure.
func Informational(err error) bool {
	return errors.Is(err, ErrEmptyMixer) || errors.Is(err, ErrAllAlreadyPlaying)
}
