package intake

import (
	"context"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
)

// PatientAPI is the part of the upstream API the patient wizards call.
// *apiclient.Client satisfies it.
type PatientAPI interface {
	CheckPatient(ctx context.Context, phone string) (*apiclient.PatientLookup, error)
	CreatePatient(ctx context.Context, payload interface{}) (*apiclient.Ref, error)
	CreateAppointment(ctx context.Context, phone string, payload interface{}) (*apiclient.Ref, error)
	GetPatientForEdit(ctx context.Context, patientID string) (*apiclient.EditablePatient, error)
	UpdatePatient(ctx context.Context, patientID string, payload interface{}) (*apiclient.Ref, error)
	UpdateVisit(ctx context.Context, patientID, visitID string, payload interface{}) (*apiclient.Ref, error)
}

// FacilityAPI registers clinics and labs.
type FacilityAPI interface {
	CreateClinic(ctx context.Context, payload interface{}) (*apiclient.Ref, error)
	CreateLab(ctx context.Context, payload interface{}) (*apiclient.Ref, error)
}

var (
	_ PatientAPI  = (*apiclient.Client)(nil)
	_ FacilityAPI = (*apiclient.Client)(nil)
)
