package intake

import (
	"context"
	"sync"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
)

// call records one upstream request in the order it was made.
type call struct {
	Method  string
	Path    string
	Payload interface{}
}

// fakePatientAPI records calls and delegates to optional func fields.
type fakePatientAPI struct {
	mu    sync.Mutex
	calls []call

	CheckPatientFunc      func(ctx context.Context, phone string) (*apiclient.PatientLookup, error)
	CreatePatientFunc     func(ctx context.Context, payload interface{}) (*apiclient.Ref, error)
	CreateAppointmentFunc func(ctx context.Context, phone string, payload interface{}) (*apiclient.Ref, error)
	GetPatientForEditFunc func(ctx context.Context, patientID string) (*apiclient.EditablePatient, error)
	UpdatePatientFunc     func(ctx context.Context, patientID string, payload interface{}) (*apiclient.Ref, error)
	UpdateVisitFunc       func(ctx context.Context, patientID, visitID string, payload interface{}) (*apiclient.Ref, error)
}

func (f *fakePatientAPI) record(method, path string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: method, Path: path, Payload: payload})
}

func (f *fakePatientAPI) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakePatientAPI) count(method, path string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (f *fakePatientAPI) CheckPatient(ctx context.Context, phone string) (*apiclient.PatientLookup, error) {
	f.record("GET", "/patients/check/"+phone, nil)
	if f.CheckPatientFunc != nil {
		return f.CheckPatientFunc(ctx, phone)
	}
	return &apiclient.PatientLookup{Exists: false}, nil
}

func (f *fakePatientAPI) CreatePatient(ctx context.Context, payload interface{}) (*apiclient.Ref, error) {
	f.record("POST", "/patients", payload)
	if f.CreatePatientFunc != nil {
		return f.CreatePatientFunc(ctx, payload)
	}
	return &apiclient.Ref{ID: "patient-1", PatientID: "PT-0001"}, nil
}

func (f *fakePatientAPI) CreateAppointment(ctx context.Context, phone string, payload interface{}) (*apiclient.Ref, error) {
	f.record("POST", "/patients/"+phone+"/appointments", payload)
	if f.CreateAppointmentFunc != nil {
		return f.CreateAppointmentFunc(ctx, phone, payload)
	}
	return &apiclient.Ref{AppointmentID: "appt-1"}, nil
}

func (f *fakePatientAPI) GetPatientForEdit(ctx context.Context, patientID string) (*apiclient.EditablePatient, error) {
	f.record("GET", "/patients/"+patientID+"/edit", nil)
	if f.GetPatientForEditFunc != nil {
		return f.GetPatientForEditFunc(ctx, patientID)
	}
	return &apiclient.EditablePatient{}, nil
}

func (f *fakePatientAPI) UpdatePatient(ctx context.Context, patientID string, payload interface{}) (*apiclient.Ref, error) {
	f.record("PUT", "/patients/"+patientID+"/edit", payload)
	if f.UpdatePatientFunc != nil {
		return f.UpdatePatientFunc(ctx, patientID, payload)
	}
	return &apiclient.Ref{ID: patientID}, nil
}

func (f *fakePatientAPI) UpdateVisit(ctx context.Context, patientID, visitID string, payload interface{}) (*apiclient.Ref, error) {
	f.record("PUT", "/patients/"+patientID+"/visit/"+visitID, payload)
	if f.UpdateVisitFunc != nil {
		return f.UpdateVisitFunc(ctx, patientID, visitID, payload)
	}
	return &apiclient.Ref{VisitID: visitID}, nil
}

type fakeFacilityAPI struct {
	mu    sync.Mutex
	calls []call

	CreateClinicFunc func(ctx context.Context, payload interface{}) (*apiclient.Ref, error)
}

func (f *fakeFacilityAPI) CreateClinic(ctx context.Context, payload interface{}) (*apiclient.Ref, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{Method: "POST", Path: "/assigner/clinics", Payload: payload})
	f.mu.Unlock()
	if f.CreateClinicFunc != nil {
		return f.CreateClinicFunc(ctx, payload)
	}
	return &apiclient.Ref{ID: "clinic-1"}, nil
}

func (f *fakeFacilityAPI) CreateLab(ctx context.Context, payload interface{}) (*apiclient.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: "POST", Path: "/assigner/labs", Payload: payload})
	return &apiclient.Ref{ID: "lab-1"}, nil
}

// countingEncoder fails the test if it is reached for a file that should have
// been rejected earlier.
type countingEncoder struct {
	mu    sync.Mutex
	calls int
	inner DocumentEncoder
}

func (e *countingEncoder) Encode(ctx context.Context, u Upload) (EncodedFile, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.inner != nil {
		return e.inner.Encode(ctx, u)
	}
	return EncodedFile{DataURL: "data:" + u.MimeType + ";base64,", MimeType: u.MimeType, Size: u.Size}, nil
}

func (e *countingEncoder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func fixedClock(day string) func() time.Time {
	t, err := time.Parse("2006-01-02 15:04", day+" 10:30")
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func testOptions() Options {
	return Options{Clock: fixedClock("2024-06-14")}
}
