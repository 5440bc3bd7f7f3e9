package intake

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	phoneRegex   = regexp.MustCompile(`^\d{10}$`)
	pincodeRegex = regexp.MustCompile(`^\d{6}$`)
	emailRegex   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	mustRegister := func(tag string, fn validator.Func) {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("intake: register validation %q: %v", tag, err))
		}
	}
	mustRegister("phone10", matches(phoneRegex))
	mustRegister("pincode", matches(pincodeRegex))
	mustRegister("simple_email", matches(emailRegex))
	mustRegister("numeric_or_empty", validateNumericOrEmpty)
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

func validateNumericOrEmpty(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if s == "" {
		return true
	}
	_, ok := parseFinite(s)
	return ok
}

// parseFinite parses s as a float and rejects NaN and the infinities, which
// strconv accepts but JSON cannot carry.
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ValidPhone reports whether s is exactly ten digits.
func ValidPhone(s string) bool {
	return phoneRegex.MatchString(strings.TrimSpace(s))
}

// rule checks one value against a validator tag. When other is set the tag is
// evaluated with VarWithValue against it.
type rule struct {
	key     string
	value   string
	tag     string
	message string
	other   *string
}

// runRules applies rules in order; the first failing rule per key wins.
func runRules(rules ...rule) map[string]string {
	errs := map[string]string{}
	for _, r := range rules {
		if _, failed := errs[r.key]; failed {
			continue
		}
		value := strings.TrimSpace(r.value)
		var err error
		if r.other != nil {
			err = validate.VarWithValue(value, strings.TrimSpace(*r.other), r.tag)
		} else {
			err = validate.Var(value, r.tag)
		}
		if err != nil {
			errs[r.key] = r.message
		}
	}
	return errs
}

func required(key, value, message string) rule {
	return rule{key: key, value: value, tag: "required", message: message}
}

func format(key, value, tag, message string) rule {
	return rule{key: key, value: value, tag: "omitempty," + tag, message: message}
}

func phoneRules(key, value, label string) []rule {
	return []rule{
		required(key, value, label+" is required"),
		format(key, value, "phone10", "Please enter a valid 10-digit phone number"),
	}
}

func addressRules(a Address) []rule {
	return []rule{
		required("street", a.Street, "Street address is required"),
		required("city", a.City, "City is required"),
		required("state", a.State, "State is required"),
		required("pincode", a.Pincode, "Pincode is required"),
		format("pincode", a.Pincode, "pincode", "Pincode must be exactly 6 digits"),
	}
}

// ValidatePhoneEntry checks the number typed on the phone-entry step.
func ValidatePhoneEntry(phone string) map[string]string {
	return runRules(phoneRules("phone", phone, "Phone number")...)
}

// ValidateProfile checks the personal, contact and emergency details of a
// patient.
func ValidateProfile(p PatientProfile) map[string]string {
	rules := []rule{
		required("fullName", p.PersonalInfo.FullName, "Full name is required"),
		required("dateOfBirth", p.PersonalInfo.DateOfBirth, "Date of birth is required"),
		format("dateOfBirth", p.PersonalInfo.DateOfBirth, "datetime=2006-01-02", "Date of birth must be a valid date"),
		required("gender", p.PersonalInfo.Gender, "Gender is required"),
		format("heightValue", string(p.PersonalInfo.Height.Value), "numeric_or_empty", "Height must be a number"),
	}
	rules = append(rules, phoneRules("phone", p.ContactInfo.Phone, "Phone number")...)
	rules = append(rules, format("email", p.ContactInfo.Email, "simple_email", "Please enter a valid email address"))
	rules = append(rules, addressRules(p.ContactInfo.Address)...)
	rules = append(rules,
		required("emergencyName", p.EmergencyContact.Name, "Emergency contact name is required"),
		required("emergencyRelationship", p.EmergencyContact.Relationship, "Relationship is required"),
	)
	rules = append(rules, phoneRules("emergencyPhone", p.EmergencyContact.Phone, "Emergency contact phone")...)
	return runRules(rules...)
}

// ValidateVisit checks the visit step: complaint, diagnosis and numeric
// vitals.
func ValidateVisit(v Visit) map[string]string {
	vt := v.Vitals
	const notNumeric = "Must be a number"
	return runRules(
		required("chiefComplaint", v.Complaints.Chief, "Chief complaint is required"),
		required("diagnosis", v.Examination.ProvisionalDiagnosis, "Diagnosis is required"),
		format("weight", string(vt.Weight), "numeric_or_empty", notNumeric),
		format("temperature", string(vt.Temperature), "numeric_or_empty", notNumeric),
		format("systolic", string(vt.BloodPressure.Systolic), "numeric_or_empty", notNumeric),
		format("diastolic", string(vt.BloodPressure.Diastolic), "numeric_or_empty", notNumeric),
		format("heartRate", string(vt.HeartRate), "numeric_or_empty", notNumeric),
		format("oxygenSaturation", string(vt.OxygenSaturation), "numeric_or_empty", notNumeric),
		format("bloodSugar", string(vt.BloodSugar.Value), "numeric_or_empty", notNumeric),
	)
}

// ValidateOnboardingStep checks one step of the onboarding wizard.
func ValidateOnboardingStep(step Step, r OnboardingRecord) map[string]string {
	switch step {
	case StepDetails:
		return runRules(
			required("name", r.Details.Name, "Name is required"),
			required("registrationNumber", r.Details.RegistrationNumber, "Registration number is required"),
			required("ownerName", r.Details.OwnerName, "Owner name is required"),
		)
	case StepContact:
		rules := phoneRules("phone", r.Contact.Phone, "Phone number")
		rules = append(rules,
			required("email", r.Contact.Email, "Email is required"),
			format("email", r.Contact.Email, "simple_email", "Please enter a valid email address"),
		)
		return runRules(rules...)
	case StepAddress:
		return runRules(addressRules(r.Address)...)
	case StepCredentials:
		return runRules(
			required("password", r.Credentials.Password, "Password is required"),
			rule{key: "password", value: r.Credentials.Password, tag: "min=6", message: "Password must be at least 6 characters"},
			required("confirmPassword", r.Credentials.ConfirmPassword, "Please confirm the password"),
			rule{key: "confirmPassword", value: r.Credentials.ConfirmPassword, tag: "eqcsfield", message: "Passwords do not match", other: &r.Credentials.Password},
		)
	}
	return map[string]string{}
}
