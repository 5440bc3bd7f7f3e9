package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/intake"
	"github.com/goccy/go-json"
)

const (
	ownerA = "user-a"
	ownerB = "user-b"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memDraftStore is an in-memory DraftStore with an injectable save failure.
type memDraftStore struct {
	mu      sync.Mutex
	drafts  map[string]Draft
	saves   int
	SaveErr error
}

func newMemDraftStore() *memDraftStore {
	return &memDraftStore{drafts: map[string]Draft{}}
}

func (s *memDraftStore) Save(ctx context.Context, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.drafts[d.SessionID] = d
	return nil
}

func (s *memDraftStore) Load(ctx context.Context, sessionID string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[sessionID]
	if !ok {
		return nil, ErrDraftNotFound
	}
	return &d, nil
}

func (s *memDraftStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, sessionID)
	return nil
}

func (s *memDraftStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, d := range s.drafts {
		if d.UpdatedAt.Before(cutoff) {
			delete(s.drafts, id)
			n++
		}
	}
	return n, nil
}

func (s *memDraftStore) CountOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.drafts {
		if d.UpdatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (s *memDraftStore) get(id string) (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	return d, ok
}

type fakeFacilities struct {
	mu     sync.Mutex
	clinic int
	lab    int

	CreateClinicFunc func(ctx context.Context, payload interface{}) (*apiclient.Ref, error)
}

func (f *fakeFacilities) CreateClinic(ctx context.Context, payload interface{}) (*apiclient.Ref, error) {
	f.mu.Lock()
	f.clinic++
	f.mu.Unlock()
	if f.CreateClinicFunc != nil {
		return f.CreateClinicFunc(ctx, payload)
	}
	return &apiclient.Ref{ID: "clinic-1"}, nil
}

func (f *fakeFacilities) CreateLab(ctx context.Context, payload interface{}) (*apiclient.Ref, error) {
	f.mu.Lock()
	f.lab++
	f.mu.Unlock()
	return &apiclient.Ref{ID: "lab-1"}, nil
}

type fakePatients struct {
	CheckPatientFunc      func(ctx context.Context, phone string) (*apiclient.PatientLookup, error)
	GetPatientForEditFunc func(ctx context.Context, patientID string) (*apiclient.EditablePatient, error)
}

func (f *fakePatients) CheckPatient(ctx context.Context, phone string) (*apiclient.PatientLookup, error) {
	if f.CheckPatientFunc != nil {
		return f.CheckPatientFunc(ctx, phone)
	}
	return &apiclient.PatientLookup{Exists: false}, nil
}

func (f *fakePatients) CreatePatient(ctx context.Context, payload interface{}) (*apiclient.Ref, error) {
	return &apiclient.Ref{ID: "patient-1", PatientID: "PT-0001"}, nil
}

func (f *fakePatients) CreateAppointment(ctx context.Context, phone string, payload interface{}) (*apiclient.Ref, error) {
	return &apiclient.Ref{AppointmentID: "appt-1"}, nil
}

func (f *fakePatients) GetPatientForEdit(ctx context.Context, patientID string) (*apiclient.EditablePatient, error) {
	if f.GetPatientForEditFunc != nil {
		return f.GetPatientForEditFunc(ctx, patientID)
	}
	return nil, &apiclient.Error{StatusCode: 404, Method: "GET", Path: "/patients/" + patientID + "/edit"}
}

func (f *fakePatients) UpdatePatient(ctx context.Context, patientID string, payload interface{}) (*apiclient.Ref, error) {
	return &apiclient.Ref{ID: patientID}, nil
}

func (f *fakePatients) UpdateVisit(ctx context.Context, patientID, visitID string, payload interface{}) (*apiclient.Ref, error) {
	return &apiclient.Ref{VisitID: visitID}, nil
}

type submittedCall struct {
	ownerID string
	outcome intake.Outcome
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []submittedCall
}

func (n *recordingNotifier) Submitted(ctx context.Context, ownerID string, out intake.Outcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, submittedCall{ownerID: ownerID, outcome: out})
}

type recordingMetrics struct {
	mu          sync.Mutex
	operations  []string
	submissions []string
	sessions    int64
	rejected    int
}

func (m *recordingMetrics) RecordWizardOperation(ctx context.Context, kind, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations = append(m.operations, kind+":"+operation)
}

func (m *recordingMetrics) RecordSubmission(ctx context.Context, kind, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = append(m.submissions, kind+":"+result)
}

func (m *recordingMetrics) RecordSessionDelta(ctx context.Context, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions += delta
}

func (m *recordingMetrics) RecordDocumentsRejected(ctx context.Context, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected += count
}

type testEnv struct {
	clock      *fakeClock
	store      *memDraftStore
	facilities *fakeFacilities
	patients   *fakePatients
	notifier   *recordingNotifier
	metrics    *recordingMetrics
	manager    *Manager
	ids        int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:      newFakeClock(),
		store:      newMemDraftStore(),
		facilities: &fakeFacilities{},
		patients:   &fakePatients{},
		notifier:   &recordingNotifier{},
		metrics:    &recordingMetrics{},
	}
	env.manager = env.newManager()
	return env
}

// newManager builds a manager sharing the env's store and clock, as a
// restarted process would.
func (e *testEnv) newManager() *Manager {
	return NewManager(ManagerConfig{
		Patients:   e.patients,
		Facilities: e.facilities,
		Store:      e.store,
		Notifier:   e.notifier,
		Metrics:    e.metrics,
		TTL:        time.Hour,
		Clock:      e.clock.Now,
		NewID: func() string {
			e.ids++
			return fmt.Sprintf("session-%d", e.ids)
		},
	})
}

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func fieldUpdate(section, field, value string) FieldUpdateRequest {
	return FieldUpdateRequest{
		FieldPath: intake.FieldPath{Section: section, Field: field},
		Value:     rawString(value),
	}
}

var onboardingFields = []FieldUpdateRequest{
	fieldUpdate("details", "name", "Sunrise Clinic"),
	fieldUpdate("details", "registrationNumber", "MH-2024-118"),
	fieldUpdate("details", "ownerName", "Dr. Kulkarni"),
	fieldUpdate("contact", "phone", "9988776655"),
	fieldUpdate("contact", "email", "desk@sunrise.in"),
	fieldUpdate("address", "street", "4 FC Road"),
	fieldUpdate("address", "city", "Pune"),
	fieldUpdate("address", "state", "Maharashtra"),
	fieldUpdate("address", "pincode", "411004"),
	fieldUpdate("credentials", "password", "s3cret!"),
	fieldUpdate("credentials", "confirmPassword", "s3cret!"),
}

// fillAndAdvance fills the onboarding form and moves to the credentials step.
func fillAndAdvance(t *testing.T, svc *Service, ownerID, id string) {
	t.Helper()
	ctx := context.Background()
	for _, f := range onboardingFields {
		if _, err := svc.UpdateField(ctx, ownerID, id, f); err != nil {
			t.Fatalf("UpdateField %s.%s: %v", f.Section, f.Field, err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.Advance(ctx, ownerID, id); err != nil {
			t.Fatalf("Advance %d: %v", i, err)
		}
	}
}

var errBoom = errors.New("boom")
