package catalog

import (
	"context"
	"reflect"
	"strings"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/intake"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type PrescribedMedicine struct {
	MedicineName string `json:"medicineName" validate:"required"`
	Dosage       string `json:"dosage" validate:"required"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type RecommendedTest struct {
	TestName string `json:"testName" validate:"required"`
	Urgency  string `json:"urgency,omitempty" validate:"omitempty,oneof=Routine Urgent Emergency"`
}

// Prescription is the body sent to POST /prescriptions and PUT
// /prescriptions/:id.
type Prescription struct {
	PatientID     string               `json:"patientId" validate:"required"`
	VisitID       string               `json:"visitId,omitempty"`
	AppointmentID string               `json:"appointmentId,omitempty"`
	Medicines     []PrescribedMedicine `json:"medicines" validate:"required,min=1,dive"`
	Tests         []RecommendedTest    `json:"tests,omitempty" validate:"dive"`
	Notes         string               `json:"notes,omitempty"`
}

func (p *Prescription) normalize() {
	p.PatientID = strings.TrimSpace(p.PatientID)
	for i := range p.Medicines {
		p.Medicines[i].MedicineName = strings.TrimSpace(p.Medicines[i].MedicineName)
		p.Medicines[i].Dosage = strings.TrimSpace(p.Medicines[i].Dosage)
	}
	for i := range p.Tests {
		p.Tests[i].TestName = strings.TrimSpace(p.Tests[i].TestName)
	}
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var fieldMessages = map[string]string{
	"required": "is required",
	"min":      "needs at least one entry",
	"oneof":    "has an unsupported value",
}

// validateStruct returns a field map keyed by JSON path, e.g.
// "medicines[0].dosage".
func validateStruct(v interface{}) map[string]string {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		fields[ns] = fe.Field() + " " + msg
	}
	return fields
}

type PrescriptionService struct {
	upstream Upstream
	log      *zap.Logger
}

func NewPrescriptionService(upstream Upstream, log *zap.Logger) *PrescriptionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PrescriptionService{upstream: upstream, log: log}
}

func (s *PrescriptionService) Create(ctx context.Context, p Prescription) (*apiclient.Ref, error) {
	p.normalize()
	if fields := validateStruct(p); len(fields) > 0 {
		return nil, &intake.ValidationError{Fields: fields}
	}
	ref, err := s.upstream.CreatePrescription(ctx, p)
	if err != nil {
		s.log.Error("failed to create prescription", zap.String("patient_id", p.PatientID), zap.Error(err))
		return nil, err
	}
	s.log.Info("prescription created", zap.String("patient_id", p.PatientID), zap.String("prescription_id", ref.PrescriptionID))
	return ref, nil
}

func (s *PrescriptionService) Update(ctx context.Context, id string, p Prescription) (*apiclient.Ref, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &intake.ValidationError{Fields: map[string]string{"id": "Prescription ID is required"}}
	}
	p.normalize()
	if fields := validateStruct(p); len(fields) > 0 {
		return nil, &intake.ValidationError{Fields: fields}
	}
	ref, err := s.upstream.UpdatePrescription(ctx, id, p)
	if err != nil {
		s.log.Error("failed to update prescription", zap.String("prescription_id", id), zap.Error(err))
		return nil, err
	}
	return ref, nil
}
