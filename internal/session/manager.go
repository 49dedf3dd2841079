package session

import (
	"context"
	"log"
	"time"

	"github.com/satindergrewal/ambimix/internal/mixer"
)

// Manager ties a Store to a running engine.
type Manager struct {
	store  Store
	engine *mixer.Engine
	now    func() time.Time
}

// NewManager creates a manager saving and restoring engine through store.
func NewManager(store Store, engine *mixer.Engine) *Manager {
	return &Manager{store: store, engine: engine, now: time.Now}
}

// Store returns the backing store.
func (m *Manager) Store() Store { return m.store }

// Save snapshots the engine under name.
func (m *Manager) Save(ctx context.Context, name string) (Document, error) {
	if err := validName(name); err != nil {
		return Document{}, err
	}
	meta := DefaultMetadata(baseName(name), m.engine.Count(), m.now())
	doc := Save(m.engine, meta)
	if err := m.store.Save(ctx, name, doc); err != nil {
		return Document{}, err
	}
	log.Printf("Session saved: %s (%d tracks)", name, len(doc.Tracks))
	m.engine.Notify(mixer.Event{Kind: mixer.EventSessionSaved, Session: baseName(name)})
	return doc, nil
}

// Load restores the named session. A store failure leaves the engine as it was.
func (m *Manager) Load(ctx context.Context, name string) (RestoreReport, error) {
	doc, err := m.store.Load(ctx, name)
	if err != nil {
		return RestoreReport{}, err
	}
	report := Load(doc, m.engine)
	for _, s := range report.Skipped {
		log.Printf("Session %s: skipped %s: %s", name, s.Source, s.Reason)
	}
	log.Printf("Session loaded: %s (%d restored, %d skipped)", name, report.Restored, len(report.Skipped))
	m.engine.Notify(mixer.Event{
		Kind:    mixer.EventSessionLoaded,
		Session: baseName(name),
		Skipped: report.SkippedSources(),
	})
	return report, nil
}

// List returns the stored session names, sorted.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Delete removes a stored session. Unknown names return ErrNotFound.
func (m *Manager) Delete(ctx context.Context, name string) error {
	return m.store.Delete(ctx, name)
}

// Describe reads a session's name, track count and metadata without
// touching the engine.
func (m *Manager) Describe(ctx context.Context, name string) (Info, error) {
	return Describe(ctx, m.store, name)
}
