package wizard

import (
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/intake"
	"github.com/goccy/go-json"
)

// SessionView is the session id plus the wizard's current view.
type SessionView struct {
	ID string `json:"id"`
	intake.View
}

func viewOf(s *Session) SessionView {
	return SessionView{ID: s.ID, View: s.Wizard.View()}
}

type LookupResult struct {
	Exists  bool        `json:"exists"`
	Session SessionView `json:"session"`
}

type ListResult struct {
	Added   bool        `json:"added"`
	Session SessionView `json:"session"`
}

type DocumentsResult struct {
	Added    []intake.Document  `json:"added"`
	Rejected []intake.FileError `json:"rejected"`
	Session  SessionView        `json:"session"`
}

type SubmitResult struct {
	Outcome intake.Outcome `json:"outcome"`
	Session SessionView    `json:"session"`
}

// Request bodies

type OpenEditRequest struct {
	PatientID string `json:"patientId"`
}

type OpenOnboardingRequest struct {
	Kind string `json:"kind"`
}

// FieldUpdateRequest carries a field path and the raw JSON value for it.
type FieldUpdateRequest struct {
	intake.FieldPath
	Value json.RawMessage `json:"value"`
}

type DocumentUpdateRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type CheckRequest struct {
	Phone string `json:"phone"`
}

// Response envelopes

type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
