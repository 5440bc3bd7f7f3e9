package intake

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/goccy/go-json"
)

const editFailed = "Failed to update patient. Please try again."

// Edit is the "edit existing patient + current visit" wizard.
type Edit struct {
	base
	api PatientAPI

	patientID string
	visitID   string
	// hadVisit records whether the fetched snapshot carried an open visit.
	hadVisit bool
	record   EditRecord
	staging  Staging
}

// OpenEdit fetches the patient and its open visit and starts an edit wizard.
func OpenEdit(ctx context.Context, api PatientAPI, patientID string, opts Options) (*Edit, error) {
	loaded, err := api.GetPatientForEdit(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load patient %s: %w", patientID, err)
	}
	return NewEdit(api, patientID, loaded, opts)
}

// NewEdit starts an edit wizard from an already fetched record.
func NewEdit(api PatientAPI, patientID string, loaded *apiclient.EditablePatient, opts Options) (*Edit, error) {
	w := &Edit{api: api, patientID: patientID}
	w.init(editFlow, opts)
	w.record = NewEditRecord()
	if loaded == nil {
		return w, nil
	}

	profile, _, err := decodeServerProfile(loaded.Patient, w.now())
	if err != nil {
		return nil, err
	}
	w.record.PatientProfile = profile

	visit, visitID, err := decodeServerVisit(loaded.CurrentVisit, w.now())
	if err != nil {
		return nil, err
	}
	w.record.CurrentVisit = visit
	w.visitID = visitID
	w.hadVisit = visit != nil
	return w, nil
}

func (w *Edit) Kind() Kind { return KindEdit }

func (w *Edit) PatientID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.patientID
}

func (w *Edit) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec := w.record
	if rec.CurrentVisit != nil {
		v := *rec.CurrentVisit
		rec.CurrentVisit = &v
	}
	view := w.view(KindEdit, rec)
	st := w.staging
	view.Staging = &st
	return view
}

func (w *Edit) Update(p FieldPath, value interface{}) error {
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

func (w *Edit) UpdateStaging(p FieldPath, value interface{}) error {
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

// visitCopy returns a private copy of the open visit so list edits never
// write through a pointer another view may hold.
func (w *Edit) visitCopy() *Visit {
	if w.record.CurrentVisit == nil {
		return nil
	}
	v := *w.record.CurrentVisit
	return &v
}

func (w *Edit) AddItem(list ListKind) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return false, err
	}
	visit := w.visitCopy()
	ok, err := addFromStaging(list, &w.staging, &w.record.PatientProfile, visit)
	if ok && visit != nil {
		w.record.CurrentVisit = visit
	}
	return ok, err
}

func (w *Edit) RemoveItem(list ListKind, index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return err
	}
	visit := w.visitCopy()
	if err := removeFromList(list, index, &w.record.PatientProfile, visit); err != nil {
		return err
	}
	if visit != nil {
		w.record.CurrentVisit = visit
	}
	return nil
}

func (w *Edit) AddDocuments(ctx context.Context, files []Upload) ([]Document, []FileError, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return nil, nil, err
	}
	added, rejected, err := encodeUploads(ctx, w.opts.Encoder, files, w.now())
	if err != nil {
		return nil, nil, err
	}
	for _, d := range added {
		w.record.Documents = appendItem(w.record.Documents, d)
	}
	return added, rejected, nil
}

func (w *Edit) UpdateDocument(index int, field, value string) error {
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

func (w *Edit) RemoveDocument(index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return err
	}
	w.record.Documents, _ = removeAt(w.record.Documents, index)
	return nil
}

func (w *Edit) Advance() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return err
	}

	var errs map[string]string
	switch w.step {
	case StepPersonal:
		errs = ValidateProfile(w.record.PatientProfile)
	case StepVisit:
		return ErrTerminalStep
	}
	if err := w.check(errs); err != nil {
		return err
	}
	return w.fire(EventAdvance)
}

func (w *Edit) Retreat() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy() != nil {
		return
	}
	w.retreat()
}

// Submit always updates the patient and updates the visit only when the
// patient had an open visit when the wizard was opened and still has one.
func (w *Edit) Submit(ctx context.Context) (*Outcome, error) {
	prepare := func() (submission, error) {
		if w.step != StepVisit {
			return nil, ErrWrongStep
		}
		if w.patientID == "" {
			return nil, fmt.Errorf("%w: no patient loaded", ErrWrongStep)
		}
		errs := ValidateProfile(w.record.PatientProfile)
		if w.record.CurrentVisit != nil {
			for k, v := range ValidateVisit(*w.record.CurrentVisit) {
				errs[k] = v
			}
		}
		if err := w.check(errs); err != nil {
			return nil, err
		}

		patientID := w.patientID
		visitID := w.visitID
		patient := buildPatientPayload(w.record.ContactInfo.Phone, w.record.PatientProfile)
		updateVisit := w.hadVisit && w.record.CurrentVisit != nil && visitID != ""
		var visit VisitPayload
		if updateVisit {
			visit = buildVisitPayload(*w.record.CurrentVisit)
		}

		return func(ctx context.Context) (*Outcome, error) {
			out := &Outcome{Kind: KindEdit, PatientExists: true, Phone: patient.Phone, PatientID: patientID}
			ref, err := w.api.UpdatePatient(ctx, patientID, patient)
			if err != nil {
				return nil, fmt.Errorf("failed to update patient: %w", err)
			}
			out.Patient = ref
			if updateVisit {
				ref, err := w.api.UpdateVisit(ctx, patientID, visitID, visit)
				if err != nil {
					return nil, fmt.Errorf("failed to update visit: %w", err)
				}
				out.Visit = ref
			}
			return out, nil
		}, nil
	}
	return w.submit(ctx, prepare, w.resetLocked, editFailed)
}

func (w *Edit) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
}

// resetLocked clears the record and the fetched snapshot. The patient id is
// kept so the session still names the patient it was opened for.
func (w *Edit) resetLocked() {
	w.record = NewEditRecord()
	w.staging = Staging{}
	w.visitID = ""
	w.hadVisit = false
	w.step = w.flow.First()
	w.errors = map[string]string{}
}

type editState struct {
	PatientID string            `json:"patientId"`
	VisitID   string            `json:"visitId,omitempty"`
	HadVisit  bool              `json:"hadVisit"`
	Record    EditRecord        `json:"record"`
	Staging   Staging           `json:"staging"`
	Step      Step              `json:"step"`
	Errors    map[string]string `json:"errors"`
}

func (w *Edit) MarshalState() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return json.Marshal(editState{
		PatientID: w.patientID,
		VisitID:   w.visitID,
		HadVisit:  w.hadVisit,
		Record:    w.record,
		Staging:   w.staging,
		Step:      w.step,
		Errors:    w.errors,
	})
}

// RestoreEdit rebuilds an edit wizard from MarshalState output.
func RestoreEdit(data []byte, api PatientAPI, opts Options) (*Edit, error) {
	var st editState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode edit state: %w", err)
	}
	if !editFlow.Contains(st.Step) {
		return nil, fmt.Errorf("%w: step %q in %s flow", ErrWrongStep, st.Step, editFlow.Name())
	}
	w := &Edit{api: api}
	w.init(editFlow, opts)
	st.Record.PatientProfile.normalize()
	if st.Record.CurrentVisit != nil {
		st.Record.CurrentVisit.normalize()
	}
	w.patientID = st.PatientID
	w.visitID = st.VisitID
	w.hadVisit = st.HadVisit
	w.record = st.Record
	w.staging = st.Staging
	w.step = st.Step
	if st.Errors != nil {
		w.errors = st.Errors
	}
	return w, nil
}

// decodeServerVisit decodes the open visit, if any. The upstream API names
// some visit fields after the appointment payload, so those are accepted as
// fallbacks.
func decodeServerVisit(raw json.RawMessage, today time.Time) (*Visit, string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, "", nil
	}
	visit := NewVisit(today)
	if err := json.Unmarshal(raw, &visit); err != nil {
		return nil, "", fmt.Errorf("failed to decode current visit: %w", err)
	}
	var extra struct {
		ID              string `json:"_id"`
		VisitID         string `json:"visitId"`
		AppointmentDate string `json:"appointmentDate"`
		AppointmentTime string `json:"appointmentTime"`
		AppointmentType string `json:"appointmentType"`
	}
	if err := json.Unmarshal(raw, &extra); err != nil {
		return nil, "", fmt.Errorf("failed to decode current visit: %w", err)
	}
	if extra.AppointmentDate != "" {
		visit.Date = NormalizeDate(extra.AppointmentDate)
	}
	if extra.AppointmentTime != "" {
		visit.Time = extra.AppointmentTime
	}
	if extra.AppointmentType != "" {
		visit.Type = extra.AppointmentType
	}
	visit.normalize()

	id := extra.VisitID
	if id == "" {
		id = extra.ID
	}
	return &visit, id, nil
}
