package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	registrationFailed = "Failed to register patient. Please try again."
	lookupFailed       = "Failed to check patient. Please try again."
)

// Registration is the "new patient + first visit" wizard. The phone-entry step
// is left through CheckExisting, which fixes whether the patient already
// exists for the rest of the session.
type Registration struct {
	base
	api PatientAPI

	record    FormRecord
	staging   Staging
	phone     string
	patientID string
	exists    *bool
	// uploads holds digests of documents uploaded in this session.
	uploads map[string]struct{}
	// created is set once POST /patients succeeded so a retry after a
	// failed appointment call only sends the appointment.
	created *apiclient.Ref
}

func NewRegistration(api PatientAPI, opts Options) *Registration {
	w := &Registration{api: api}
	w.init(pendingFlow, opts)
	w.record = NewFormRecord(w.now())
	return w
}

func (w *Registration) Kind() Kind { return KindRegistration }

func (w *Registration) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	v := w.view(KindRegistration, w.record)
	st := w.staging
	v.Staging = &st
	v.Phone = w.phone
	if w.exists != nil {
		exists := *w.exists
		v.PatientExists = &exists
	}
	v.DocumentsAdded = w.sessionDocuments()
	return v
}

func (w *Registration) Update(p FieldPath, value interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return err
	}
	rec, err := Update(w.record, p, value, w.now())
	if err != nil {
		return err
	}
	w.record = rec
	return nil
}

func (w *Registration) UpdateStaging(p FieldPath, value interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return err
	}
	st, err := Update(w.staging, p, value, w.now())
	if err != nil {
		return err
	}
	w.staging = st
	return nil
}

func (w *Registration) AddItem(list ListKind) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return false, err
	}
	return addFromStaging(list, &w.staging, &w.record.PatientProfile, &w.record.Appointment)
}

func (w *Registration) RemoveItem(list ListKind, index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return err
	}
	return removeFromList(list, index, &w.record.PatientProfile, &w.record.Appointment)
}

// AddDocuments appends every acceptable file and reports the rest.
func (w *Registration) AddDocuments(ctx context.Context, files []Upload) ([]Document, []FileError, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return nil, nil, err
	}
	added, rejected, err := encodeUploads(ctx, w.opts.Encoder, files, w.now())
	if err != nil {
		return nil, nil, err
	}
	if w.uploads == nil {
		w.uploads = map[string]struct{}{}
	}
	for _, d := range added {
		w.record.Documents = appendItem(w.record.Documents, d)
		w.uploads[documentDigest(d)] = struct{}{}
	}
	return added, rejected, nil
}

// sessionDocuments counts the documents still on the record that were
// uploaded in this session.
func (w *Registration) sessionDocuments() int {
	n := 0
	for _, d := range w.record.Documents {
		if _, ok := w.uploads[documentDigest(d)]; ok {
			n++
		}
	}
	return n
}

func documentDigest(d Document) string {
	sum := sha256.Sum256([]byte(d.FileURL))
	return hex.EncodeToString(sum[:])
}

func (w *Registration) UpdateDocument(index int, field, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return err
	}
	docs, err := setDocumentField(w.record.Documents, index, field, value)
	if err != nil {
		return err
	}
	w.record.Documents = docs
	return nil
}

func (w *Registration) RemoveDocument(index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return err
	}
	w.record.Documents, _ = removeAt(w.record.Documents, index)
	return nil
}

// CheckExisting looks the phone number up once and moves to documents for a
// known patient or to permanent-details for a new one.
func (w *Registration) CheckExisting(ctx context.Context, phone string) (bool, error) {
	phone = strings.TrimSpace(phone)

	w.mu.Lock()
	if err := w.busy(); err != nil {
		w.mu.Unlock()
		return false, err
	}
	if w.exists != nil {
		w.mu.Unlock()
		return false, ErrExistenceResolved
	}
	if w.step != StepPhoneEntry {
		w.mu.Unlock()
		return false, ErrWrongStep
	}
	w.phone = phone
	if err := w.check(ValidatePhoneEntry(phone)); err != nil {
		w.mu.Unlock()
		return false, err
	}
	if !w.inFlight.CompareAndSwap(false, true) {
		w.mu.Unlock()
		return false, ErrSubmitInProgress
	}
	w.mu.Unlock()

	lookup, err := w.api.CheckPatient(ctx, phone)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight.Store(false)

	if err != nil {
		w.errors = map[string]string{SubmitErrorKey: lookupFailed}
		w.opts.Logger.Warn("patient lookup failed", zap.Error(err))
		return false, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	if !lookup.Exists {
		w.record.ContactInfo.Phone = phone
		w.resolve(false, EventPatientNotFound)
		return false, nil
	}

	profile, id, err := decodeServerProfile(lookup.Patient, w.now())
	if err != nil {
		w.errors = map[string]string{SubmitErrorKey: lookupFailed}
		w.opts.Logger.Error("failed to decode patient record", zap.Error(err))
		return false, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if profile.ContactInfo.Phone == "" {
		profile.ContactInfo.Phone = phone
	}
	w.record.PatientProfile = profile
	w.patientID = id
	w.resolve(true, EventPatientFound)
	return true, nil
}

// resolve fires the gate transition on the pending flow and switches to the
// flow for the resolved existence state.
func (w *Registration) resolve(exists bool, ev Event) {
	w.errors = map[string]string{}
	if err := w.fire(ev); err != nil {
		w.opts.Logger.Error("gate transition rejected", zap.String("event", string(ev)), zap.Error(err))
		return
	}
	w.exists = &exists
	w.flow = registrationFlow(w.exists)
}

func (w *Registration) Advance() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return err
	}

	var errs map[string]string
	switch w.step {
	case StepPhoneEntry:
		if w.exists == nil {
			return ErrGateRequired
		}
		errs = ValidatePhoneEntry(w.phone)
	case StepPermanentDetails:
		errs = ValidateProfile(w.record.PatientProfile)
	case StepVisit:
		return ErrTerminalStep
	}
	if err := w.check(errs); err != nil {
		return err
	}
	return w.fire(EventAdvance)
}

func (w *Registration) Retreat() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy() != nil {
		return
	}
	w.retreat()
}

// Submit sends the patient record when the patient is new or documents
// uploaded in this session are still attached, then always records the
// appointment. Once the patient is created a retry sends the appointment only.
func (w *Registration) Submit(ctx context.Context) (*Outcome, error) {
	prepare := func() (submission, error) {
		if w.step != StepVisit {
			return nil, ErrWrongStep
		}
		if err := w.check(ValidateVisit(w.record.Appointment)); err != nil {
			return nil, err
		}

		existing := w.exists != nil && *w.exists
		phone := strings.TrimSpace(w.record.ContactInfo.Phone)
		if phone == "" {
			phone = w.phone
		}
		sendPatient := (!existing || w.sessionDocuments() > 0) && w.created == nil
		patient := buildPatientPayload(phone, w.record.PatientProfile)
		visit := buildVisitPayload(w.record.Appointment)
		patientID := w.patientID
		created := w.created

		return func(ctx context.Context) (*Outcome, error) {
			out := &Outcome{
				Kind:          KindRegistration,
				PatientExists: existing,
				Phone:         phone,
				PatientID:     patientID,
			}
			out.setPatient(created)
			if sendPatient {
				ref, err := w.api.CreatePatient(ctx, patient)
				if err != nil {
					return nil, fmt.Errorf("failed to create patient: %w", err)
				}
				w.markCreated(ref)
				out.setPatient(ref)
			}
			ref, err := w.api.CreateAppointment(ctx, phone, visit)
			if err != nil {
				return nil, fmt.Errorf("failed to create appointment: %w", err)
			}
			out.Appointment = ref
			return out, nil
		}, nil
	}
	return w.submit(ctx, prepare, w.resetLocked, registrationFailed)
}

func (w *Registration) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
}

func (w *Registration) resetLocked() {
	w.record = NewFormRecord(w.now())
	w.staging = Staging{}
	w.phone = ""
	w.patientID = ""
	w.exists = nil
	w.uploads = nil
	w.created = nil
	w.flow = pendingFlow
	w.step = pendingFlow.First()
	w.errors = map[string]string{}
}

type registrationState struct {
	Record         FormRecord        `json:"record"`
	Staging        Staging           `json:"staging"`
	Step           Step              `json:"step"`
	Phone          string            `json:"phone"`
	PatientID      string            `json:"patientId,omitempty"`
	PatientExists  *bool             `json:"patientExists"`
	Uploads        []string          `json:"uploads,omitempty"`
	CreatedPatient *apiclient.Ref    `json:"createdPatient,omitempty"`
	Errors         map[string]string `json:"errors"`
}

func (w *Registration) MarshalState() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return json.Marshal(registrationState{
		Record:         w.record,
		Staging:        w.staging,
		Step:           w.step,
		Phone:          w.phone,
		PatientID:      w.patientID,
		PatientExists:  w.exists,
		Uploads:        uploadList(w.uploads),
		CreatedPatient: w.created,
		Errors:         w.errors,
	})
}

func (w *Registration) markCreated(ref *apiclient.Ref) {
	if ref == nil {
		ref = &apiclient.Ref{}
	}
	w.mu.Lock()
	w.created = ref
	w.mu.Unlock()
}

func uploadList(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// RestoreRegistration rebuilds a wizard from MarshalState output.
func RestoreRegistration(data []byte, api PatientAPI, opts Options) (*Registration, error) {
	var st registrationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode registration state: %w", err)
	}
	w := NewRegistration(api, opts)
	flow := registrationFlow(st.PatientExists)
	if !flow.Contains(st.Step) {
		return nil, fmt.Errorf("%w: step %q in %s flow", ErrWrongStep, st.Step, flow.Name())
	}
	st.Record.PatientProfile.normalize()
	st.Record.Appointment.normalize()

	w.record = st.Record
	w.staging = st.Staging
	w.phone = st.Phone
	w.patientID = st.PatientID
	w.exists = st.PatientExists
	if len(st.Uploads) > 0 {
		w.uploads = make(map[string]struct{}, len(st.Uploads))
		for _, d := range st.Uploads {
			w.uploads[d] = struct{}{}
		}
	}
	w.created = st.CreatedPatient
	w.flow = flow
	w.step = st.Step
	if st.Errors != nil {
		w.errors = st.Errors
	}
	return w, nil
}

// decodeServerProfile overlays a server patient record on a fresh profile so
// fields the server omits keep their defaults.
func decodeServerProfile(raw json.RawMessage, today time.Time) (PatientProfile, string, error) {
	profile := newProfile()
	var withID struct {
		ID        string `json:"_id"`
		PatientID string `json:"patientId"`
	}
	if len(raw) == 0 {
		return profile, "", nil
	}
	if err := json.Unmarshal(raw, &profile); err != nil {
		return PatientProfile{}, "", fmt.Errorf("failed to decode patient record: %w", err)
	}
	if err := json.Unmarshal(raw, &withID); err != nil {
		return PatientProfile{}, "", fmt.Errorf("failed to decode patient id: %w", err)
	}
	profile.normalize()
	if profile.PersonalInfo.Height.Unit == "" {
		profile.PersonalInfo.Height.Unit = DefaultHeightUnit
	}
	if profile.ContactInfo.Address.Country == "" {
		profile.ContactInfo.Address.Country = DefaultCountry
	}
	profile.PersonalInfo.DateOfBirth = NormalizeDate(profile.PersonalInfo.DateOfBirth)
	profile.syncAge(today)

	id := withID.ID
	if id == "" {
		id = withID.PatientID
	}
	return profile, id, nil
}
