package settings

import (
	"context"
	"sync"
	"sync/atomic"

	"reelrender/internal/models"
	"reelrender/internal/pkg/errors"
	"reelrender/internal/pkg/logger"
)

// Manager serves the current settings snapshot. Jobs copy the snapshot at
// start; Save swaps it atomically so in-flight jobs keep what they read.
type Manager struct {
	store Store
	log   *logger.Logger

	mu  sync.Mutex // serializes Save and Reload
	cur atomic.Pointer[models.Settings]
}

func NewManager(store Store, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault()
	}
	m := &Manager{store: store, log: log.WithComponent("settings")}
	def := Defaults()
	m.cur.Store(&def)
	return m
}

// Backend names the store in use.
func (m *Manager) Backend() string { return m.store.Name() }

// Snapshot returns a copy of the current settings.
func (m *Manager) Snapshot() models.Settings {
	return *m.cur.Load()
}

// Reload reads the store and replaces the snapshot. A document that fails
// validation leaves the previous snapshot in place.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.store.Load(ctx)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "settings.reload", "failed to load settings").
			WithField("backend", m.store.Name())
	}
	s, unused, err := FromStrings(doc, Defaults())
	if err != nil {
		return err
	}
	if len(unused) > 0 {
		m.log.Warn("ignoring unknown settings keys", "keys", unused)
	}
	if s, err = Validate(s); err != nil {
		return err
	}
	m.cur.Store(&s)
	m.log.Info("settings loaded", "backend", m.store.Name(), "keys", len(doc))
	return nil
}

// Save merges patch onto the current snapshot, validates, persists the full
// document and then publishes the new snapshot.
func (m *Manager) Save(ctx context.Context, patch map[string]any) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, unused, err := FromMap(patch, m.Snapshot())
	if err != nil {
		return models.Settings{}, err
	}
	if len(unused) > 0 {
		return models.Settings{}, errors.Validation("unknown settings keys").WithField("keys", unused)
	}
	if s, err = Validate(s); err != nil {
		return models.Settings{}, err
	}
	if err := m.store.Save(ctx, ToMap(s)); err != nil {
		return models.Settings{}, errors.WrapWithCode(err, errors.CodeUnavailable, "settings.save", "failed to save settings").
			WithField("backend", m.store.Name())
	}
	m.cur.Store(&s)
	m.log.Info("settings saved", "backend", m.store.Name())
	return s, nil
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
