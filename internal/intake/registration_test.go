package intake

import (
	"context"
	"errors"
	"testing"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/goccy/go-json"
)

const testPhone = "9876543210"

func mustUpdate(t *testing.T, w Wizard, section, field, nested string, value interface{}) {
	t.Helper()
	if err := w.Update(FieldPath{Section: section, Field: field, NestedKey: nested}, value); err != nil {
		t.Fatalf("Update %s.%s.%s: %v", section, field, nested, err)
	}
}

func fillPermanentDetails(t *testing.T, w Wizard) {
	t.Helper()
	mustUpdate(t, w, "personalInfo", "fullName", "", "Asha Rao")
	mustUpdate(t, w, "personalInfo", "dateOfBirth", "", "1990-04-12")
	mustUpdate(t, w, "personalInfo", "gender", "", "Female")
	mustUpdate(t, w, "contactInfo", "address", "street", "12 MG Road")
	mustUpdate(t, w, "contactInfo", "address", "city", "Pune")
	mustUpdate(t, w, "contactInfo", "address", "state", "Maharashtra")
	mustUpdate(t, w, "contactInfo", "address", "pincode", "411001")
	mustUpdate(t, w, "emergencyContact", "name", "", "Ravi Rao")
	mustUpdate(t, w, "emergencyContact", "relationship", "", "Brother")
	mustUpdate(t, w, "emergencyContact", "phone", "", "9123456780")
}

func fillVisit(t *testing.T, w Wizard) {
	t.Helper()
	mustUpdate(t, w, "appointment", "complaints", "chief", "Fever")
	mustUpdate(t, w, "appointment", "examination", "provisionalDiagnosis", "Viral infection")
}

func advanceTo(t *testing.T, w Wizard, step Step) {
	t.Helper()
	for i := 0; i < 10 && w.View().Step != step; i++ {
		if err := w.Advance(); err != nil {
			t.Fatalf("Advance from %s: %v", w.View().Step, err)
		}
	}
	if got := w.View().Step; got != step {
		t.Fatalf("Expected step %s, got %s", step, got)
	}
}

func newPatientAtVisit(t *testing.T, api *fakePatientAPI, opts Options) *Registration {
	t.Helper()
	w := NewRegistration(api, opts)
	if _, err := w.CheckExisting(context.Background(), testPhone); err != nil {
		t.Fatalf("CheckExisting: %v", err)
	}
	fillPermanentDetails(t, w)
	advanceTo(t, w, StepVisit)
	fillVisit(t, w)
	return w
}

func existingLookup(t *testing.T) func(context.Context, string) (*apiclient.PatientLookup, error) {
	t.Helper()
	patient := json.RawMessage(`{
		"_id": "patient-42",
		"personalInfo": {"fullName": "Asha Rao", "dateOfBirth": "1990-04-12T00:00:00.000Z", "gender": "Female", "age": 33},
		"contactInfo": {"phone": "9876543210", "address": {"city": "Pune", "pincode": "411001"}},
		"emergencyContact": {"name": "Ravi Rao", "relationship": "Brother", "phone": "9123456780"},
		"medicalHistory": {"allergies": null, "chronicConditions": [{"condition": "Asthma", "severity": "Mild"}]},
		"documents": null
	}`)
	return func(ctx context.Context, phone string) (*apiclient.PatientLookup, error) {
		return &apiclient.PatientLookup{Exists: true, Patient: patient}, nil
	}
}

func TestCheckExisting_NotFoundGoesToPermanentDetails(t *testing.T) {
	api := &fakePatientAPI{}
	w := NewRegistration(api, testOptions())

	exists, err := w.CheckExisting(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if exists {
		t.Error("Expected exists=false")
	}
	if n := api.count("GET", "/patients/check/"+testPhone); n != 1 {
		t.Errorf("Expected exactly one lookup, got %d", n)
	}

	view := w.View()
	if view.Step != StepPermanentDetails {
		t.Errorf("Expected step permanent-details, got %s", view.Step)
	}
	if view.PatientExists == nil || *view.PatientExists {
		t.Errorf("Expected patientExists=false, got %v", view.PatientExists)
	}
	if got := view.Record.(FormRecord).ContactInfo.Phone; got != testPhone {
		t.Errorf("Expected contact phone seeded with %s, got '%s'", testPhone, got)
	}
	if len(view.Steps) != 5 {
		t.Errorf("Expected full registration sequence, got %v", view.Steps)
	}
}

func TestCheckExisting_FoundGoesToDocuments(t *testing.T) {
	api := &fakePatientAPI{CheckPatientFunc: existingLookup(t)}
	w := NewRegistration(api, testOptions())

	exists, err := w.CheckExisting(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !exists {
		t.Fatal("Expected exists=true")
	}
	if n := len(api.Calls()); n != 1 {
		t.Errorf("Expected exactly one upstream call, got %d", n)
	}

	view := w.View()
	if view.Step != StepDocuments {
		t.Errorf("Expected step documents, got %s", view.Step)
	}
	want := []Step{StepPhoneEntry, StepDocuments, StepVisit}
	if len(view.Steps) != len(want) {
		t.Fatalf("Expected steps %v, got %v", want, view.Steps)
	}
	for i := range want {
		if view.Steps[i] != want[i] {
			t.Errorf("Expected steps %v, got %v", want, view.Steps)
		}
	}

	rec := view.Record.(FormRecord)
	if rec.PersonalInfo.DateOfBirth != "1990-04-12" {
		t.Errorf("Expected DOB normalised to 1990-04-12, got '%s'", rec.PersonalInfo.DateOfBirth)
	}
	if rec.PersonalInfo.Age != "34" {
		t.Errorf("Expected age recomputed to 34, got '%s'", rec.PersonalInfo.Age)
	}
	if rec.MedicalHistory.Allergies == nil || rec.Documents == nil {
		t.Error("Expected null lists to be normalised to empty lists")
	}
	if rec.ContactInfo.Address.Country != DefaultCountry {
		t.Errorf("Expected default country kept, got '%s'", rec.ContactInfo.Address.Country)
	}
	if len(rec.MedicalHistory.ChronicConditions) != 1 {
		t.Errorf("Expected server conditions kept, got %+v", rec.MedicalHistory.ChronicConditions)
	}
}

func TestCheckExisting_InvalidPhoneMakesNoCall(t *testing.T) {
	for _, phone := range []string{"", "12345", "98765432101", "98765-4321"} {
		api := &fakePatientAPI{}
		w := NewRegistration(api, testOptions())

		_, err := w.CheckExisting(context.Background(), phone)
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Fields["phone"] == "" {
			t.Errorf("phone %q: expected phone ValidationError, got %v", phone, err)
		}
		if n := len(api.Calls()); n != 0 {
			t.Errorf("phone %q: expected no upstream call, got %d", phone, n)
		}
		if w.View().Step != StepPhoneEntry {
			t.Errorf("phone %q: expected to stay on phone-entry", phone)
		}
	}
}

func TestCheckExisting_FlagIsImmutable(t *testing.T) {
	api := &fakePatientAPI{}
	w := NewRegistration(api, testOptions())

	if _, err := w.CheckExisting(context.Background(), testPhone); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	w.Retreat()
	if _, err := w.CheckExisting(context.Background(), "9999999999"); !errors.Is(err, ErrExistenceResolved) {
		t.Errorf("Expected ErrExistenceResolved, got: %v", err)
	}
	if n := len(api.Calls()); n != 1 {
		t.Errorf("Expected a single lookup, got %d", n)
	}
}

func TestCheckExisting_FailureAllowsRetry(t *testing.T) {
	fail := true
	api := &fakePatientAPI{}
	api.CheckPatientFunc = func(ctx context.Context, phone string) (*apiclient.PatientLookup, error) {
		if fail {
			return nil, &apiclient.Error{StatusCode: 500, Message: "boom"}
		}
		return &apiclient.PatientLookup{Exists: false}, nil
	}
	w := NewRegistration(api, testOptions())

	if _, err := w.CheckExisting(context.Background(), testPhone); err == nil {
		t.Fatal("Expected lookup error")
	}
	view := w.View()
	if view.Errors[SubmitErrorKey] != "Failed to check patient. Please try again." {
		t.Errorf("Expected generic lookup error, got %v", view.Errors)
	}
	if view.Step != StepPhoneEntry || view.PatientExists != nil {
		t.Errorf("Expected unchanged step and unresolved flag, got %s %v", view.Step, view.PatientExists)
	}

	fail = false
	if _, err := w.CheckExisting(context.Background(), testPhone); err != nil {
		t.Fatalf("Expected retry to succeed, got: %v", err)
	}
	if w.View().Step != StepPermanentDetails {
		t.Errorf("Expected permanent-details after retry, got %s", w.View().Step)
	}
}

func TestRegistration_StepController(t *testing.T) {
	w := NewRegistration(&fakePatientAPI{}, testOptions())

	if err := w.Advance(); !errors.Is(err, ErrGateRequired) {
		t.Fatalf("Expected ErrGateRequired before lookup, got: %v", err)
	}
	w.Retreat()
	if w.View().Step != StepPhoneEntry {
		t.Fatal("Expected retreat at first step to be a no-op")
	}

	w.CheckExisting(context.Background(), testPhone)

	err := w.Advance()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected validation error on empty details, got: %v", err)
	}
	if w.View().Errors["fullName"] == "" {
		t.Errorf("Expected fullName error in view, got %v", w.View().Errors)
	}

	w.Retreat()
	view := w.View()
	if view.Step != StepPhoneEntry || len(view.Errors) != 0 {
		t.Fatalf("Expected phone-entry with cleared errors, got %s %v", view.Step, view.Errors)
	}
	if err := w.Advance(); err != nil {
		t.Fatalf("Expected resolved phone-entry to advance, got: %v", err)
	}
	if w.View().Step != StepPermanentDetails {
		t.Errorf("Expected permanent-details, got %s", w.View().Step)
	}

	fillPermanentDetails(t, w)
	advanceTo(t, w, StepVisit)
	if err := w.Advance(); !errors.Is(err, ErrTerminalStep) {
		t.Errorf("Expected ErrTerminalStep at visit, got: %v", err)
	}
}

func TestRegistration_PincodeBlocksAdvance(t *testing.T) {
	w := NewRegistration(&fakePatientAPI{}, testOptions())
	w.CheckExisting(context.Background(), testPhone)
	fillPermanentDetails(t, w)
	mustUpdate(t, w, "contactInfo", "address", "pincode", "12a45")

	err := w.Advance()
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields["pincode"] == "" {
		t.Fatalf("Expected pincode validation error, got: %v", err)
	}
	view := w.View()
	if view.Step != StepPermanentDetails {
		t.Errorf("Expected to stay on permanent-details, got %s", view.Step)
	}
	if view.Errors["pincode"] == "" {
		t.Errorf("Expected pincode error in view, got %v", view.Errors)
	}
}

func TestSubmit_NewPatientCallOrder(t *testing.T) {
	api := &fakePatientAPI{}
	var outcome *Outcome
	opts := testOptions()
	opts.OnSuccess = func(ctx context.Context, out Outcome) { outcome = &out }
	w := newPatientAtVisit(t, api, opts)

	out, err := w.Submit(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	calls := api.Calls()
	if len(calls) != 3 {
		t.Fatalf("Expected lookup + 2 submit calls, got %+v", calls)
	}
	if calls[1].Method != "POST" || calls[1].Path != "/patients" {
		t.Errorf("Expected POST /patients second, got %s %s", calls[1].Method, calls[1].Path)
	}
	if calls[2].Method != "POST" || calls[2].Path != "/patients/9876543210/appointments" {
		t.Errorf("Expected POST /patients/9876543210/appointments third, got %s %s", calls[2].Method, calls[2].Path)
	}

	patient := calls[1].Payload.(PatientPayload)
	if patient.Phone != testPhone || patient.PersonalInfo.Age != "34" {
		t.Errorf("Unexpected patient payload: %+v", patient.PersonalInfo)
	}
	visit := calls[2].Payload.(VisitPayload)
	if visit.AppointmentType != "Consultation" || visit.Duration != 30 || visit.Complaints.Severity != "Moderate" {
		t.Errorf("Expected visit defaults, got %+v", visit)
	}
	if visit.Vitals.Weight != nil || visit.Vitals.BloodSugar.Type != "Random" {
		t.Errorf("Expected empty vitals as null, got %+v", visit.Vitals)
	}
	if visit.Complaints.Chief != "Fever" || visit.Examination.ProvisionalDiagnosis != "Viral infection" {
		t.Errorf("Unexpected clinical payload: %+v", visit)
	}

	if out.Patient == nil || out.Appointment == nil || out.PatientID != "patient-1" {
		t.Errorf("Expected server identifiers in outcome, got %+v", out)
	}
	if outcome == nil || outcome.Phone != testPhone {
		t.Errorf("Expected success callback with outcome, got %+v", outcome)
	}

	view := w.View()
	if view.Step != StepPhoneEntry || view.PatientExists != nil || view.Phone != "" {
		t.Errorf("Expected full reset, got step=%s exists=%v phone=%q", view.Step, view.PatientExists, view.Phone)
	}
	if view.Record.(FormRecord).PersonalInfo.FullName != "" {
		t.Error("Expected record reset to defaults")
	}
}

func TestSubmit_ParsesVitals(t *testing.T) {
	api := &fakePatientAPI{}
	w := newPatientAtVisit(t, api, testOptions())
	mustUpdate(t, w, "appointment", "vitals", "weight", json.RawMessage(`"72.5"`))
	w.Update(FieldPath{Section: "appointment", Field: "vitals", NestedKey: "bloodPressure", SubKey: "systolic"}, "120")
	mustUpdate(t, w, "appointment", "duration", "", "45")

	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	visit := api.Calls()[2].Payload.(VisitPayload)
	if visit.Vitals.Weight == nil || *visit.Vitals.Weight != 72.5 {
		t.Errorf("Expected weight 72.5, got %v", visit.Vitals.Weight)
	}
	if visit.Vitals.BloodPressure.Systolic == nil || *visit.Vitals.BloodPressure.Systolic != 120 {
		t.Errorf("Expected systolic 120, got %v", visit.Vitals.BloodPressure.Systolic)
	}
	if visit.Vitals.BloodPressure.Diastolic != nil {
		t.Errorf("Expected diastolic null, got %v", *visit.Vitals.BloodPressure.Diastolic)
	}
	if visit.Duration != 45 {
		t.Errorf("Expected duration 45, got %d", visit.Duration)
	}
}

func TestSubmit_ExistingPatientWithoutDocumentsSkipsPatientCall(t *testing.T) {
	api := &fakePatientAPI{CheckPatientFunc: existingLookup(t)}
	w := NewRegistration(api, testOptions())
	if _, err := w.CheckExisting(context.Background(), testPhone); err != nil {
		t.Fatalf("CheckExisting: %v", err)
	}
	advanceTo(t, w, StepVisit)
	fillVisit(t, w)

	out, err := w.Submit(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if n := api.count("POST", "/patients"); n != 0 {
		t.Errorf("Expected zero POST /patients, got %d", n)
	}
	if n := api.count("POST", "/patients/"+testPhone+"/appointments"); n != 1 {
		t.Errorf("Expected one appointment call, got %d", n)
	}
	if !out.PatientExists || out.PatientID != "patient-42" {
		t.Errorf("Expected existing patient outcome, got %+v", out)
	}
}

func TestSubmit_ExistingPatientWithNewDocumentSendsPatient(t *testing.T) {
	api := &fakePatientAPI{CheckPatientFunc: existingLookup(t)}
	w := NewRegistration(api, testOptions())
	w.CheckExisting(context.Background(), testPhone)
	if _, _, err := w.AddDocuments(context.Background(), []Upload{uploadOf("r.pdf", "application/pdf", pdfOfSize(64))}); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	advanceTo(t, w, StepVisit)
	fillVisit(t, w)

	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	calls := api.Calls()
	if len(calls) != 3 || calls[1].Path != "/patients" || calls[2].Path != "/patients/"+testPhone+"/appointments" {
		t.Fatalf("Expected patient then appointment, got %+v", calls)
	}
	if docs := calls[1].Payload.(PatientPayload).Documents; len(docs) != 1 {
		t.Errorf("Expected the new document in the payload, got %d", len(docs))
	}
}

func TestSubmit_FailureKeepsStateAndSurfacesMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server message", &apiclient.Error{StatusCode: 409, Message: "Doctor not available"}, "Doctor not available"},
		{"no message", errors.New("connection reset"), "Failed to register patient. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakePatientAPI{
				CreateAppointmentFunc: func(ctx context.Context, phone string, payload interface{}) (*apiclient.Ref, error) {
					return nil, tt.err
				},
			}
			called := false
			opts := testOptions()
			opts.OnSuccess = func(context.Context, Outcome) { called = true }
			w := newPatientAtVisit(t, api, opts)

			_, err := w.Submit(context.Background())
			if !errors.Is(err, ErrSubmitFailed) {
				t.Fatalf("Expected ErrSubmitFailed, got: %v", err)
			}
			view := w.View()
			if view.Errors[SubmitErrorKey] != tt.want {
				t.Errorf("Expected submit error '%s', got %v", tt.want, view.Errors)
			}
			if view.Step != StepVisit || view.Record.(FormRecord).PersonalInfo.FullName != "Asha Rao" {
				t.Error("Expected state kept after failure")
			}
			if view.Submitting {
				t.Error("Expected latch released after failure")
			}
			if called {
				t.Error("Expected no success callback")
			}
		})
	}
}

func TestSubmit_ValidationBlocksCalls(t *testing.T) {
	api := &fakePatientAPI{}
	w := newPatientAtVisit(t, api, testOptions())
	mustUpdate(t, w, "appointment", "complaints", "chief", "")

	_, err := w.Submit(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields["chiefComplaint"] == "" {
		t.Fatalf("Expected chiefComplaint validation error, got: %v", err)
	}
	if n := len(api.Calls()); n != 1 {
		t.Errorf("Expected only the lookup call, got %d", n)
	}
}

func TestSubmit_WrongStep(t *testing.T) {
	w := NewRegistration(&fakePatientAPI{}, testOptions())
	if _, err := w.Submit(context.Background()); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Expected ErrWrongStep, got: %v", err)
	}
}

func TestSubmit_ConcurrentSubmitIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &fakePatientAPI{
		CreatePatientFunc: func(ctx context.Context, payload interface{}) (*apiclient.Ref, error) {
			close(started)
			<-release
			return &apiclient.Ref{ID: "patient-1"}, nil
		},
	}
	w := newPatientAtVisit(t, api, testOptions())

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		done <- err
	}()
	<-started

	if _, err := w.Submit(context.Background()); !errors.Is(err, ErrSubmitInProgress) {
		t.Errorf("Expected ErrSubmitInProgress, got: %v", err)
	}
	if err := w.Update(FieldPath{Section: "personalInfo", Field: "fullName"}, "X"); !errors.Is(err, ErrSubmitInProgress) {
		t.Errorf("Expected updates refused while submitting, got: %v", err)
	}
	if !w.View().Submitting {
		t.Error("Expected view to report submitting")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Expected first submit to succeed, got: %v", err)
	}
	if n := api.count("POST", "/patients"); n != 1 {
		t.Errorf("Expected exactly one POST /patients, got %d", n)
	}
	if n := api.count("POST", "/patients/"+testPhone+"/appointments"); n != 1 {
		t.Errorf("Expected exactly one appointment call, got %d", n)
	}
}

func TestRegistration_StateRoundTrip(t *testing.T) {
	api := &fakePatientAPI{CheckPatientFunc: existingLookup(t)}
	w := NewRegistration(api, testOptions())
	w.CheckExisting(context.Background(), testPhone)
	w.UpdateStaging(FieldPath{Section: "newAllergy", Field: "allergen"}, "Dust")

	data, err := w.MarshalState()
	if err != nil {
		t.Fatalf("MarshalState: %v", err)
	}
	restored, err := RestoreRegistration(data, api, testOptions())
	if err != nil {
		t.Fatalf("RestoreRegistration: %v", err)
	}

	view := restored.View()
	if view.Step != StepDocuments || view.PatientExists == nil || !*view.PatientExists {
		t.Errorf("Expected restored existing-patient session on documents, got %s %v", view.Step, view.PatientExists)
	}
	if view.Staging.NewAllergy.Allergen != "Dust" {
		t.Errorf("Expected staging restored, got %+v", view.Staging)
	}
	if _, err := restored.CheckExisting(context.Background(), testPhone); !errors.Is(err, ErrExistenceResolved) {
		t.Errorf("Expected restored flag to stay immutable, got: %v", err)
	}
}
