package mixer

// Handle identifies one loaded source inside an OutputPort.
type Handle uint64

// OutputPort is the audio playback collaborator a Track drives. Every call
// must return without blocking; a port that decodes in the background reports
// late failures through ErrorReporter instead of from Load.
//
// Load errors should wrap ErrSourceNotFound or ErrDecodeFailed.
type OutputPort interface {
	Load(path string) (Handle, error)
	Play(h Handle, volume float64, loop bool)
	Pause(h Handle)
	Resume(h Handle)
	Stop(h Handle)
	SetVolume(h Handle, volume float64)
	SetLoop(h Handle, loop bool)
	Release(h Handle)
}

// ErrorReporter is implemented by ports that can fail after Load returned.
// The callback may be invoked from any goroutine.
type ErrorReporter interface {
	OnError(fn func(h Handle, err error))
}
