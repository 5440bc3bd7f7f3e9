package intake

import (
	"strconv"
	"strings"
)

// PatientPayload is the body of POST /patients and PUT /patients/:id/edit.
type PatientPayload struct {
	Phone            string           `json:"phone"`
	PersonalInfo     PersonalInfo     `json:"personalInfo"`
	ContactInfo      ContactInfo      `json:"contactInfo"`
	EmergencyContact EmergencyContact `json:"emergencyContact"`
	MedicalHistory   MedicalHistory   `json:"medicalHistory"`
	Photo            string           `json:"photo,omitempty"`
	Documents        []Document       `json:"documents"`
}

type BloodPressurePayload struct {
	Systolic  *float64 `json:"systolic"`
	Diastolic *float64 `json:"diastolic"`
}

type BloodSugarPayload struct {
	Value *float64 `json:"value"`
	Type  string   `json:"type"`
}

// VitalsPayload carries parsed vitals; an empty input is sent as null.
type VitalsPayload struct {
	Weight           *float64             `json:"weight"`
	Temperature      *float64             `json:"temperature"`
	BloodPressure    BloodPressurePayload `json:"bloodPressure"`
	HeartRate        *float64             `json:"heartRate"`
	OxygenSaturation *float64             `json:"oxygenSaturation"`
	BloodSugar       BloodSugarPayload    `json:"bloodSugar"`
}

// VisitPayload is the body of POST /patients/:phone/appointments and
// PUT /patients/:id/visit/:visitId.
type VisitPayload struct {
	AppointmentDate string         `json:"appointmentDate"`
	AppointmentTime string         `json:"appointmentTime"`
	Mode            string         `json:"mode"`
	AppointmentType string         `json:"appointmentType"`
	Duration        int            `json:"duration"`
	DoctorID        string         `json:"doctorId,omitempty"`
	Vitals          VitalsPayload  `json:"vitals"`
	Complaints      Complaints     `json:"complaints"`
	Examination     Examination    `json:"examination"`
	Investigations  Investigations `json:"investigations"`
	Treatment       Treatment      `json:"treatment"`
	FollowUp        FollowUp       `json:"followUp"`
	DoctorNotes     string         `json:"doctorNotes"`
}

func buildPatientPayload(phone string, p PatientProfile) PatientPayload {
	p.normalize()
	return PatientPayload{
		Phone:            phone,
		PersonalInfo:     p.PersonalInfo,
		ContactInfo:      p.ContactInfo,
		EmergencyContact: p.EmergencyContact,
		MedicalHistory:   p.MedicalHistory,
		Photo:            p.Photo,
		Documents:        p.Documents,
	}
}

func buildVisitPayload(v Visit) VisitPayload {
	v.normalize()

	complaints := v.Complaints
	if blank(complaints.Severity) {
		complaints.Severity = DefaultComplaintSeverity
	}
	sugarType := v.Vitals.BloodSugar.Type
	if blank(sugarType) {
		sugarType = DefaultBloodSugarType
	}

	return VisitPayload{
		AppointmentDate: v.Date,
		AppointmentTime: v.Time,
		Mode:            orDefault(v.Mode, DefaultAppointmentMode),
		AppointmentType: orDefault(v.Type, DefaultAppointmentType),
		Duration:        parseDuration(v.Duration),
		DoctorID:        strings.TrimSpace(v.DoctorID),
		Vitals: VitalsPayload{
			Weight:      parseVital(v.Vitals.Weight),
			Temperature: parseVital(v.Vitals.Temperature),
			BloodPressure: BloodPressurePayload{
				Systolic:  parseVital(v.Vitals.BloodPressure.Systolic),
				Diastolic: parseVital(v.Vitals.BloodPressure.Diastolic),
			},
			HeartRate:        parseVital(v.Vitals.HeartRate),
			OxygenSaturation: parseVital(v.Vitals.OxygenSaturation),
			BloodSugar: BloodSugarPayload{
				Value: parseVital(v.Vitals.BloodSugar.Value),
				Type:  sugarType,
			},
		},
		Complaints:     complaints,
		Examination:    v.Examination,
		Investigations: v.Investigations,
		Treatment:      v.Treatment,
		FollowUp:       v.FollowUp,
		DoctorNotes:    v.DoctorNotes,
	}
}

// parseVital returns nil for empty, non-numeric or non-finite input.
func parseVital(t NumericText) *float64 {
	f, ok := parseFinite(strings.TrimSpace(string(t)))
	if !ok {
		return nil
	}
	return &f
}

func parseDuration(t NumericText) int {
	n, err := strconv.Atoi(strings.TrimSpace(string(t)))
	if err != nil || n <= 0 {
		return DefaultDurationMinutes
	}
	return n
}

func orDefault(s, def string) string {
	if blank(s) {
		return def
	}
	return strings.TrimSpace(s)
}
