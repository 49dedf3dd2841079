package mixer

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type portCall struct {
	op     string
	handle Handle
	path   string
	volume float64
	loop   bool
}

// fakePort records every call and hands out sequential handles.
type fakePort struct {
	mu       sync.Mutex
	next     Handle
	calls    []portCall
	loadErrs map[string]error
	onError  func(Handle, error)
}

func newFakePort() *fakePort {
	return &fakePort{loadErrs: make(map[string]error)}
}

func (p *fakePort) record(c portCall) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

func (p *fakePort) Load(path string) (Handle, error) {
	p.record(portCall{op: "load", path: path})
	if err := p.loadErrs[path]; err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return p.next, nil
}

func (p *fakePort) Play(h Handle, volume float64, loop bool) {
	p.record(portCall{op: "play", handle: h, volume: volume, loop: loop})
}
func (p *fakePort) Pause(h Handle)  { p.record(portCall{op: "pause", handle: h}) }
func (p *fakePort) Resume(h Handle) { p.record(portCall{op: "resume", handle: h}) }
func (p *fakePort) Stop(h Handle)   { p.record(portCall{op: "stop", handle: h}) }
func (p *fakePort) SetVolume(h Handle, v float64) {
	p.record(portCall{op: "volume", handle: h, volume: v})
}
func (p *fakePort) SetLoop(h Handle, loop bool) {
	p.record(portCall{op: "loop", handle: h, loop: loop})
}
func (p *fakePort) Release(h Handle) { p.record(portCall{op: "release", handle: h}) }

func (p *fakePort) OnError(fn func(Handle, error)) { p.onError = fn }

func (p *fakePort) count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (p *fakePort) last(op string) (portCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.calls) - 1; i >= 0; i-- {
		if p.calls[i].op == op {
			return p.calls[i], true
		}
	}
	return portCall{}, false
}

// seqRand returns vals in order, cycling.
type seqRand struct {
	vals []float64
	i    int
}

func (r *seqRand) Float64() float64 {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}

// writeSource creates an empty audio file named name in dir.
func writeSource(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}
