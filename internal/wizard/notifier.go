package wizard

import (
	"context"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/intake"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/messaging"
	"go.uber.org/zap"
)

// Worklist names understood by the dashboard refresher.
const (
	WorklistClinics      = "clinics"
	WorklistPatients     = "patients"
	WorklistAppointments = "appointments"
)

// Refresher asks a dashboard worklist to refetch now instead of waiting for
// its next poll.
type Refresher interface {
	RequestRefresh(worklist string)
}

// EventNotifier turns a successful submission into domain events and
// dashboard refresh requests. Publishing failures are logged only; the
// upstream write has already happened.
type EventNotifier struct {
	publisher messaging.PublisherInterface
	refresher Refresher
	log       *zap.Logger
}

func NewEventNotifier(publisher messaging.PublisherInterface, refresher Refresher, log *zap.Logger) *EventNotifier {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EventNotifier{publisher: publisher, refresher: refresher, log: log}
}

func (n *EventNotifier) Submitted(ctx context.Context, ownerID string, out intake.Outcome) {
	for _, ev := range eventsFor(ownerID, out) {
		if err := n.publisher.Publish(ctx, ev.key, ev.payload); err != nil {
			n.log.Error("failed to publish event",
				zap.String("routing_key", ev.key),
				zap.String("kind", string(out.Kind)),
				zap.Error(err),
			)
		}
	}
	if n.refresher == nil {
		return
	}
	for _, wl := range worklistsFor(out) {
		n.refresher.RequestRefresh(wl)
	}
}

type event struct {
	key     string
	payload interface{}
}

func eventsFor(ownerID string, out intake.Outcome) []event {
	var events []event
	switch out.Kind {
	case intake.KindRegistration:
		patientID := out.PatientID
		if !out.PatientExists && out.Patient != nil {
			base := messaging.NewBaseEvent(messaging.EventPatientRegistered, ownerID)
			events = append(events, event{messaging.EventPatientRegistered, messaging.PatientRegisteredEvent{
				BaseEvent: base,
				Data: messaging.PatientRegisteredData{
					PatientID:    out.Patient.ID,
					PatientRef:   out.Patient.PatientID,
					Phone:        out.Phone,
					RegisteredAt: base.Timestamp,
				},
			}})
			if patientID == "" {
				patientID = out.Patient.ID
			}
		}
		base := messaging.NewBaseEvent(messaging.EventVisitRecorded, ownerID)
		data := messaging.VisitData{
			PatientID:  patientID,
			Phone:      out.Phone,
			NewPatient: !out.PatientExists,
			OccurredAt: base.Timestamp,
		}
		if out.Appointment != nil {
			data.AppointmentID = out.Appointment.AppointmentID
			if data.AppointmentID == "" {
				data.AppointmentID = out.Appointment.ID
			}
		}
		events = append(events, event{messaging.EventVisitRecorded, messaging.VisitEvent{BaseEvent: base, Data: data}})

	case intake.KindEdit:
		base := messaging.NewBaseEvent(messaging.EventPatientUpdated, ownerID)
		events = append(events, event{messaging.EventPatientUpdated, messaging.PatientUpdatedEvent{
			BaseEvent: base,
			Data: messaging.PatientUpdatedData{
				PatientID: out.PatientID,
				Phone:     out.Phone,
				UpdatedAt: base.Timestamp,
			},
		}})
		if out.Visit != nil {
			vb := messaging.NewBaseEvent(messaging.EventVisitUpdated, ownerID)
			events = append(events, event{messaging.EventVisitUpdated, messaging.VisitEvent{
				BaseEvent: vb,
				Data: messaging.VisitData{
					PatientID:  out.PatientID,
					Phone:      out.Phone,
					VisitID:    out.Visit.VisitID,
					OccurredAt: vb.Timestamp,
				},
			}})
		}

	case intake.KindOnboarding:
		base := messaging.NewBaseEvent(messaging.EventFacilityOnboarded, ownerID)
		data := messaging.FacilityOnboardedData{FacilityKind: string(out.FacilityKind), OnboardedAt: base.Timestamp}
		if out.Facility != nil {
			data.FacilityID = out.Facility.ID
		}
		events = append(events, event{messaging.EventFacilityOnboarded, messaging.FacilityOnboardedEvent{BaseEvent: base, Data: data}})
	}
	return events
}

func worklistsFor(out intake.Outcome) []string {
	switch out.Kind {
	case intake.KindOnboarding:
		return []string{WorklistClinics}
	case intake.KindRegistration, intake.KindEdit:
		return []string{WorklistPatients, WorklistAppointments}
	}
	return nil
}

var _ Notifier = (*EventNotifier)(nil)
