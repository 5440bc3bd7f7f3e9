package intake

import (
	"bytes"
	"time"

	"github.com/goccy/go-json"
)

// Default values applied when a record is created or a list entry is built.
const (
	DefaultCountry           = "India"
	DefaultHeightUnit        = "cm"
	DefaultConditionSeverity = "Moderate"
	DefaultAllergySeverity   = "Mild"
	DefaultTestUrgency       = "Routine"
	DefaultAppointmentType   = "Consultation"
	DefaultAppointmentMode   = "In-Person"
	DefaultDurationMinutes   = 30
	DefaultComplaintSeverity = "Moderate"
	DefaultBloodSugarType    = "Random"
)

// NumericText is a form value typed as text that the upstream API may echo
// back as a JSON number. It always marshals as a string.
type NumericText string

func (t *NumericText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*t = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = NumericText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = NumericText(n.String())
	return nil
}

type Height struct {
	Value NumericText `json:"value"`
	Unit  string      `json:"unit"`
}

type PersonalInfo struct {
	FullName    string      `json:"fullName"`
	DateOfBirth string      `json:"dateOfBirth"`
	Age         NumericText `json:"age"`
	Gender      string      `json:"gender"`
	BloodGroup  string      `json:"bloodGroup"`
	Height      Height      `json:"height"`
}

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country"`
}

type ContactInfo struct {
	Phone   string  `json:"phone"`
	Email   string  `json:"email"`
	Address Address `json:"address"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
}

type ChronicCondition struct {
	Condition     string `json:"condition"`
	DiagnosedDate string `json:"diagnosedDate"`
	Severity      string `json:"severity"`
}

type Allergy struct {
	Allergen string `json:"allergen"`
	Severity string `json:"severity"`
	Reaction string `json:"reaction"`
}

type Surgery struct {
	Surgery string `json:"surgery"`
	Date    string `json:"date"`
}

type FamilyHistoryEntry struct {
	Relation  string `json:"relation"`
	Condition string `json:"condition"`
}

type MedicalHistory struct {
	ChronicConditions []ChronicCondition   `json:"chronicConditions"`
	Allergies         []Allergy            `json:"allergies"`
	PastSurgeries     []Surgery            `json:"pastSurgeries"`
	FamilyHistory     []FamilyHistoryEntry `json:"familyHistory"`
}

// Document is an uploaded file embedded as a base64 data URL.
type Document struct {
	DocumentType string `json:"documentType"`
	FileName     string `json:"fileName"`
	FileURL      string `json:"fileUrl"`
	FileSize     int64  `json:"fileSize"`
	MimeType     string `json:"mimeType"`
	Description  string `json:"description"`
	UploadedAt   string `json:"uploadedAt"`
}

type BloodPressure struct {
	Systolic  NumericText `json:"systolic"`
	Diastolic NumericText `json:"diastolic"`
}

type BloodSugar struct {
	Value NumericText `json:"value"`
	Type  string      `json:"type"`
}

// Vitals are kept as the raw strings typed into the form and parsed only
// when the visit payload is assembled.
type Vitals struct {
	Weight           NumericText   `json:"weight"`
	Temperature      NumericText   `json:"temperature"`
	BloodPressure    BloodPressure `json:"bloodPressure"`
	HeartRate        NumericText   `json:"heartRate"`
	OxygenSaturation NumericText   `json:"oxygenSaturation"`
	BloodSugar       BloodSugar    `json:"bloodSugar"`
}

type Complaints struct {
	Chief    string `json:"chief"`
	Duration string `json:"duration"`
	Severity string `json:"severity"`
}

type Examination struct {
	PhysicalFindings      string `json:"physicalFindings"`
	ProvisionalDiagnosis  string `json:"provisionalDiagnosis"`
	DifferentialDiagnosis string `json:"differentialDiagnosis"`
}

type RecommendedTest struct {
	TestName string `json:"testName"`
	Urgency  string `json:"urgency"`
}

type Investigations struct {
	TestsRecommended []RecommendedTest `json:"testsRecommended"`
}

type Medicine struct {
	MedicineName string `json:"medicineName"`
	Dosage       string `json:"dosage"`
	Duration     string `json:"duration"`
}

type Treatment struct {
	Medicines []Medicine `json:"medicines"`
}

type FollowUp struct {
	NextAppointmentDate string `json:"nextAppointmentDate"`
	Instructions        string `json:"instructions"`
	Notes               string `json:"notes"`
}

// Visit is the appointment recorded at registration or the open visit of an
// existing patient.
type Visit struct {
	Date           string         `json:"date"`
	Time           string         `json:"time"`
	Mode           string         `json:"mode"`
	Type           string         `json:"type"`
	Duration       NumericText    `json:"duration"`
	DoctorID       string         `json:"doctorId"`
	Vitals         Vitals         `json:"vitals"`
	Complaints     Complaints     `json:"complaints"`
	Examination    Examination    `json:"examination"`
	Investigations Investigations `json:"investigations"`
	Treatment      Treatment      `json:"treatment"`
	FollowUp       FollowUp       `json:"followUp"`
	DoctorNotes    string         `json:"doctorNotes"`
}

// PatientProfile is the part of a record that describes the person.
type PatientProfile struct {
	PersonalInfo     PersonalInfo     `json:"personalInfo"`
	ContactInfo      ContactInfo      `json:"contactInfo"`
	EmergencyContact EmergencyContact `json:"emergencyContact"`
	MedicalHistory   MedicalHistory   `json:"medicalHistory"`
	Documents        []Document       `json:"documents"`
	Photo            string           `json:"photo"`
}

// FormRecord is what the registration wizard accumulates.
type FormRecord struct {
	PatientProfile
	Appointment Visit `json:"appointment"`
}

// EditRecord is what the edit wizard accumulates. CurrentVisit is nil when the
// patient has no open visit.
type EditRecord struct {
	PatientProfile
	CurrentVisit *Visit `json:"currentVisit"`
}

func newProfile() PatientProfile {
	return PatientProfile{
		PersonalInfo: PersonalInfo{
			Height: Height{Unit: DefaultHeightUnit},
		},
		ContactInfo: ContactInfo{
			Address: Address{Country: DefaultCountry},
		},
		MedicalHistory: MedicalHistory{
			ChronicConditions: []ChronicCondition{},
			Allergies:         []Allergy{},
			PastSurgeries:     []Surgery{},
			FamilyHistory:     []FamilyHistoryEntry{},
		},
		Documents: []Document{},
	}
}

// NewVisit returns a visit with every default filled in, dated now.
func NewVisit(now time.Time) Visit {
	return Visit{
		Date:     now.Format(dateLayout),
		Time:     now.Format("15:04"),
		Mode:     DefaultAppointmentMode,
		Type:     DefaultAppointmentType,
		Duration: "30",
		Vitals: Vitals{
			BloodSugar: BloodSugar{Type: DefaultBloodSugarType},
		},
		Complaints: Complaints{Severity: DefaultComplaintSeverity},
		Investigations: Investigations{
			TestsRecommended: []RecommendedTest{},
		},
		Treatment: Treatment{
			Medicines: []Medicine{},
		},
	}
}

// NewFormRecord returns a registration record with every leaf defaulted.
func NewFormRecord(now time.Time) FormRecord {
	return FormRecord{
		PatientProfile: newProfile(),
		Appointment:    NewVisit(now),
	}
}

// NewEditRecord returns an edit record with no open visit.
func NewEditRecord() EditRecord {
	return EditRecord{PatientProfile: newProfile()}
}

// normalize replaces nil lists with empty ones so records decoded from the
// upstream API never have undefined list fields.
func (p *PatientProfile) normalize() {
	if p.MedicalHistory.ChronicConditions == nil {
		p.MedicalHistory.ChronicConditions = []ChronicCondition{}
	}
	if p.MedicalHistory.Allergies == nil {
		p.MedicalHistory.Allergies = []Allergy{}
	}
	if p.MedicalHistory.PastSurgeries == nil {
		p.MedicalHistory.PastSurgeries = []Surgery{}
	}
	if p.MedicalHistory.FamilyHistory == nil {
		p.MedicalHistory.FamilyHistory = []FamilyHistoryEntry{}
	}
	if p.Documents == nil {
		p.Documents = []Document{}
	}
}

func (v *Visit) normalize() {
	if v.Investigations.TestsRecommended == nil {
		v.Investigations.TestsRecommended = []RecommendedTest{}
	}
	if v.Treatment.Medicines == nil {
		v.Treatment.Medicines = []Medicine{}
	}
}
