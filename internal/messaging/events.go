package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Event routing keys as constants
const (
	// Patient events
	EventPatientRegistered = "patient.registered"
	EventPatientUpdated    = "patient.updated"

	// Visit events
	EventVisitRecorded = "visit.recorded"
	EventVisitUpdated  = "visit.updated"

	// Facility events (clinics and labs)
	EventFacilityOnboarded = "facility.onboarded"
)

// ServiceName is stamped on every event this service publishes.
const ServiceName = "clinic-intake-service"

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType   string    `json:"event_type"`
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	ServiceName string    `json:"service_name"`
	ActorID     string    `json:"actor_id,omitempty"`
}

// PatientRegisteredEvent is published when the registration wizard creates a patient.
type PatientRegisteredEvent struct {
	BaseEvent
	Data PatientRegisteredData `json:"data"`
}

type PatientRegisteredData struct {
	PatientID    string    `json:"patient_id"`
	PatientRef   string    `json:"patient_ref,omitempty"`
	Phone        string    `json:"phone"`
	RegisteredAt time.Time `json:"registered_at"`
}

// PatientUpdatedEvent is published after the edit wizard saves a patient.
type PatientUpdatedEvent struct {
	BaseEvent
	Data PatientUpdatedData `json:"data"`
}

type PatientUpdatedData struct {
	PatientID string    `json:"patient_id"`
	Phone     string    `json:"phone"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VisitEvent covers both visit.recorded and visit.updated.
type VisitEvent struct {
	BaseEvent
	Data VisitData `json:"data"`
}

type VisitData struct {
	PatientID     string    `json:"patient_id,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	VisitID       string    `json:"visit_id,omitempty"`
	NewPatient    bool      `json:"new_patient"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// FacilityOnboardedEvent is published when a clinic or lab account is created.
type FacilityOnboardedEvent struct {
	BaseEvent
	Data FacilityOnboardedData `json:"data"`
}

type FacilityOnboardedData struct {
	FacilityID   string    `json:"facility_id"`
	FacilityKind string    `json:"facility_kind"` // clinic or lab
	OnboardedAt  time.Time `json:"onboarded_at"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType, actorID string) BaseEvent {
	return BaseEvent{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		ServiceName: ServiceName,
		ActorID:     actorID,
	}
}
