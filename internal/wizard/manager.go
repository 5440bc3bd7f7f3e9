package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/intake"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("wizard session not found")
	ErrUnsupported     = errors.New("operation not supported by this wizard")
)

// Session is one open wizard owned by one user.
type Session struct {
	ID      string
	OwnerID string
	Wizard  intake.Wizard

	lastUsed time.Time
}

// Notifier is told about every successful submission.
type Notifier interface {
	Submitted(ctx context.Context, ownerID string, out intake.Outcome)
}

// MetricsRecorder receives session and operation counts.
type MetricsRecorder interface {
	RecordWizardOperation(ctx context.Context, kind, operation string)
	RecordSubmission(ctx context.Context, kind, result string)
	RecordSessionDelta(ctx context.Context, delta int64)
	RecordDocumentsRejected(ctx context.Context, count int)
}

type nopMetrics struct{}

func (nopMetrics) RecordWizardOperation(ctx context.Context, kind, operation string) {}
func (nopMetrics) RecordSubmission(ctx context.Context, kind, result string)         {}
func (nopMetrics) RecordSessionDelta(ctx context.Context, delta int64)               {}
func (nopMetrics) RecordDocumentsRejected(ctx context.Context, count int)            {}

// ManagerConfig wires a Manager. Nil fields get working defaults.
type ManagerConfig struct {
	Patients   intake.PatientAPI
	Facilities intake.FacilityAPI
	Store      DraftStore
	Notifier   Notifier
	Metrics    MetricsRecorder
	Encoder    intake.DocumentEncoder
	TTL        time.Duration
	Clock      func() time.Time
	Logger     *zap.Logger
	NewID      func() string
}

// Manager owns the open sessions. Each session is serialised by its wizard's
// own lock; the manager lock only guards the session table.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	patients   intake.PatientAPI
	facilities intake.FacilityAPI
	store      DraftStore
	notifier   Notifier
	metrics    MetricsRecorder
	encoder    intake.DocumentEncoder
	ttl        time.Duration
	clock      func() time.Time
	log        *zap.Logger
	newID      func() string
}

func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		sessions:   map[string]*Session{},
		patients:   cfg.Patients,
		facilities: cfg.Facilities,
		store:      cfg.Store,
		notifier:   cfg.Notifier,
		metrics:    cfg.Metrics,
		encoder:    cfg.Encoder,
		ttl:        cfg.TTL,
		clock:      cfg.Clock,
		log:        cfg.Logger,
		newID:      cfg.NewID,
	}
	if m.store == nil {
		m.store = NopDraftStore{}
	}
	if m.metrics == nil {
		m.metrics = nopMetrics{}
	}
	if m.ttl <= 0 {
		m.ttl = 2 * time.Hour
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

func (m *Manager) options(sessionID, ownerID string) intake.Options {
	log := m.log.With(zap.String("session_id", sessionID))
	opts := intake.Options{
		Clock:   m.clock,
		Logger:  log,
		Encoder: m.encoder,
	}
	if m.notifier != nil {
		opts.OnSuccess = func(ctx context.Context, out intake.Outcome) {
			m.notifier.Submitted(ctx, ownerID, out)
		}
	}
	return opts
}

// OpenRegistration starts a new patient registration wizard.
func (m *Manager) OpenRegistration(ctx context.Context, ownerID string) (*Session, error) {
	id := m.newID()
	w := intake.NewRegistration(m.patients, m.options(id, ownerID))
	return m.add(ctx, id, ownerID, w), nil
}

// OpenEdit loads the patient and starts an edit wizard for it.
func (m *Manager) OpenEdit(ctx context.Context, ownerID, patientID string) (*Session, error) {
	id := m.newID()
	w, err := intake.OpenEdit(ctx, m.patients, patientID, m.options(id, ownerID))
	if err != nil {
		return nil, err
	}
	return m.add(ctx, id, ownerID, w), nil
}

// OpenOnboarding starts a clinic or lab onboarding wizard.
func (m *Manager) OpenOnboarding(ctx context.Context, ownerID string, kind intake.FacilityKind) (*Session, error) {
	id := m.newID()
	w := intake.NewOnboarding(m.facilities, kind, m.options(id, ownerID))
	return m.add(ctx, id, ownerID, w), nil
}

func (m *Manager) add(ctx context.Context, id, ownerID string, w intake.Wizard) *Session {
	s := &Session{ID: id, OwnerID: ownerID, Wizard: w, lastUsed: m.clock()}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.metrics.RecordSessionDelta(ctx, 1)
	m.log.Info("wizard session opened",
		zap.String("session_id", id),
		zap.String("kind", string(w.Kind())),
		zap.String("owner_id", ownerID),
	)
	m.Checkpoint(ctx, s)
	return s
}

// Get returns the caller's session, restoring it from its draft when it is
// not in memory. A session owned by someone else is reported as not found.
func (m *Manager) Get(ctx context.Context, ownerID, id string) (*Session, error) {
	now := m.clock()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		if s.OwnerID != ownerID {
			m.mu.Unlock()
			return nil, ErrSessionNotFound
		}
		s.lastUsed = now
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	return m.restore(ctx, ownerID, id, now)
}

func (m *Manager) restore(ctx context.Context, ownerID, id string, now time.Time) (*Session, error) {
	d, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrDraftNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	if d.OwnerID != ownerID {
		return nil, ErrSessionNotFound
	}
	if now.Sub(d.UpdatedAt) > m.ttl {
		if err := m.store.Delete(ctx, id); err != nil {
			m.log.Warn("failed to delete expired draft", zap.String("session_id", id), zap.Error(err))
		}
		return nil, ErrSessionNotFound
	}

	opts := m.options(id, ownerID)
	var w intake.Wizard
	switch d.Kind {
	case intake.KindRegistration:
		w, err = intake.RestoreRegistration(d.State, m.patients, opts)
	case intake.KindEdit:
		w, err = intake.RestoreEdit(d.State, m.patients, opts)
	case intake.KindOnboarding:
		w, err = intake.RestoreOnboarding(d.State, m.facilities, opts)
	default:
		err = fmt.Errorf("%w: %q", intake.ErrUnknownKind, d.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have restored the same draft meanwhile.
	if existing, ok := m.sessions[id]; ok {
		existing.lastUsed = now
		return existing, nil
	}
	s := &Session{ID: id, OwnerID: ownerID, Wizard: w, lastUsed: now}
	m.sessions[id] = s
	m.metrics.RecordSessionDelta(ctx, 1)
	m.log.Info("wizard session restored from draft", zap.String("session_id", id), zap.String("kind", string(d.Kind)))
	return s, nil
}

// Checkpoint saves the session's current state. A failed save is logged and
// does not fail the operation that triggered it.
func (m *Manager) Checkpoint(ctx context.Context, s *Session) {
	state, err := s.Wizard.MarshalState()
	if err != nil {
		m.log.Error("failed to snapshot wizard", zap.String("session_id", s.ID), zap.Error(err))
		return
	}
	d := Draft{
		SessionID: s.ID,
		OwnerID:   s.OwnerID,
		Kind:      s.Wizard.Kind(),
		State:     state,
		UpdatedAt: m.clock(),
	}
	if err := m.store.Save(ctx, d); err != nil {
		m.log.Warn("failed to save draft", zap.String("session_id", s.ID), zap.Error(err))
	}
}

// Close discards the session and its draft.
func (m *Manager) Close(ctx context.Context, ownerID, id string) error {
	if _, err := m.Get(ctx, ownerID, id); err != nil {
		return err
	}
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		m.metrics.RecordSessionDelta(ctx, -1)
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	m.log.Info("wizard session closed", zap.String("session_id", id))
	return nil
}

// Reap drops sessions idle for longer than the TTL along with their drafts
// and returns how many were removed.
func (m *Manager) Reap(ctx context.Context) int {
	now := m.clock()
	var expired []string

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.lastUsed) > m.ttl {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		if err := m.store.Delete(ctx, id); err != nil {
			m.log.Warn("failed to delete reaped draft", zap.String("session_id", id), zap.Error(err))
		}
	}
	if len(expired) > 0 {
		m.metrics.RecordSessionDelta(ctx, -int64(len(expired)))
		m.log.Info("reaped idle wizard sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run reaps idle sessions every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(ctx)
		}
	}
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
