package intake

import (
	"context"
	"fmt"
	"strings"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/goccy/go-json"
)

// FacilityKind selects which upstream registry an onboarding wizard submits to.
type FacilityKind string

const (
	FacilityClinic FacilityKind = "clinic"
	FacilityLab    FacilityKind = "lab"
)

func ParseFacilityKind(s string) (FacilityKind, error) {
	switch k := FacilityKind(strings.ToLower(strings.TrimSpace(s))); k {
	case FacilityClinic, FacilityLab:
		return k, nil
	}
	return "", fmt.Errorf("%w: facility kind %q", ErrUnknownKind, s)
}

type FacilityDetails struct {
	Name               string `json:"name"`
	RegistrationNumber string `json:"registrationNumber"`
	OwnerName          string `json:"ownerName"`
	Specialization     string `json:"specialization"`
	Description        string `json:"description"`
}

type FacilityContact struct {
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Website string `json:"website"`
}

type Credentials struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// OnboardingRecord is what the clinic/lab onboarding wizard accumulates.
type OnboardingRecord struct {
	Details     FacilityDetails `json:"details"`
	Contact     FacilityContact `json:"contact"`
	Address     Address         `json:"address"`
	Credentials Credentials     `json:"credentials"`
}

func NewOnboardingRecord() OnboardingRecord {
	return OnboardingRecord{Address: Address{Country: DefaultCountry}}
}

// withoutSecrets blanks the credentials; they are never rendered or persisted.
func (r OnboardingRecord) withoutSecrets() OnboardingRecord {
	r.Credentials = Credentials{}
	return r
}

// FacilityPayload is the body of POST /assigner/clinics and /assigner/labs.
type FacilityPayload struct {
	Name               string  `json:"name"`
	RegistrationNumber string  `json:"registrationNumber"`
	OwnerName          string  `json:"ownerName"`
	Specialization     string  `json:"specialization,omitempty"`
	Description        string  `json:"description,omitempty"`
	Phone              string  `json:"phone"`
	Email              string  `json:"email"`
	Website            string  `json:"website,omitempty"`
	Address            Address `json:"address"`
	Password           string  `json:"password"`
}

func buildFacilityPayload(r OnboardingRecord) FacilityPayload {
	trim := strings.TrimSpace
	return FacilityPayload{
		Name:               trim(r.Details.Name),
		RegistrationNumber: trim(r.Details.RegistrationNumber),
		OwnerName:          trim(r.Details.OwnerName),
		Specialization:     trim(r.Details.Specialization),
		Description:        trim(r.Details.Description),
		Phone:              trim(r.Contact.Phone),
		Email:              trim(r.Contact.Email),
		Website:            trim(r.Contact.Website),
		Address: Address{
			Street:  trim(r.Address.Street),
			City:    trim(r.Address.City),
			State:   trim(r.Address.State),
			Pincode: trim(r.Address.Pincode),
			Country: orDefault(r.Address.Country, DefaultCountry),
		},
		Password: r.Credentials.Password,
	}
}

// Onboarding registers a clinic or a lab for the assigner role.
type Onboarding struct {
	base
	api    FacilityAPI
	kind   FacilityKind
	record OnboardingRecord
}

func NewOnboarding(api FacilityAPI, kind FacilityKind, opts Options) *Onboarding {
	w := &Onboarding{api: api, kind: kind}
	w.init(onboardingFlow, opts)
	w.record = NewOnboardingRecord()
	return w
}

func (w *Onboarding) Kind() Kind { return KindOnboarding }

func (w *Onboarding) FacilityKind() FacilityKind { return w.kind }

func (w *Onboarding) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := w.view(KindOnboarding, w.record.withoutSecrets())
	v.FacilityKind = w.kind
	return v
}

func (w *Onboarding) Update(p FieldPath, value interface{}) error {
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

func (w *Onboarding) Advance() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.busy(); err != nil {
		return err
	}
	if w.step == onboardingFlow.Last() {
		return ErrTerminalStep
	}
	if err := w.check(ValidateOnboardingStep(w.step, w.record)); err != nil {
		return err
	}
	return w.fire(EventAdvance)
}

func (w *Onboarding) Retreat() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy() != nil {
		return
	}
	w.retreat()
}

// Submit re-checks every step, since credentials are not persisted and
// earlier steps may have been edited after they were passed.
func (w *Onboarding) Submit(ctx context.Context) (*Outcome, error) {
	prepare := func() (submission, error) {
		if w.step != StepCredentials {
			return nil, ErrWrongStep
		}
		errs := map[string]string{}
		for _, step := range onboardingFlow.sequence {
			for k, v := range ValidateOnboardingStep(step, w.record) {
				if _, ok := errs[k]; !ok {
					errs[k] = v
				}
			}
		}
		if err := w.check(errs); err != nil {
			return nil, err
		}

		kind := w.kind
		payload := buildFacilityPayload(w.record)
		return func(ctx context.Context) (*Outcome, error) {
			var create func(context.Context, interface{}) (*apiclient.Ref, error)
			switch kind {
			case FacilityLab:
				create = w.api.CreateLab
			default:
				create = w.api.CreateClinic
			}
			ref, err := create(ctx, payload)
			if err != nil {
				return nil, fmt.Errorf("failed to register %s: %w", kind, err)
			}
			return &Outcome{Kind: KindOnboarding, FacilityKind: kind, Facility: ref}, nil
		}, nil
	}
	return w.submit(ctx, prepare, w.resetLocked, fmt.Sprintf("Failed to register %s. Please try again.", w.kind))
}

func (w *Onboarding) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
}

func (w *Onboarding) resetLocked() {
	w.record = NewOnboardingRecord()
	w.step = w.flow.First()
	w.errors = map[string]string{}
}

type onboardingState struct {
	FacilityKind FacilityKind      `json:"facilityKind"`
	Record       OnboardingRecord  `json:"record"`
	Step         Step              `json:"step"`
	Errors       map[string]string `json:"errors"`
}

// MarshalState omits the credentials.
func (w *Onboarding) MarshalState() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return json.Marshal(onboardingState{
		FacilityKind: w.kind,
		Record:       w.record.withoutSecrets(),
		Step:         w.step,
		Errors:       w.errors,
	})
}

func RestoreOnboarding(data []byte, api FacilityAPI, opts Options) (*Onboarding, error) {
	var st onboardingState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode onboarding state: %w", err)
	}
	kind, err := ParseFacilityKind(string(st.FacilityKind))
	if err != nil {
		return nil, err
	}
	if !onboardingFlow.Contains(st.Step) {
		return nil, fmt.Errorf("%w: step %q in %s flow", ErrWrongStep, st.Step, onboardingFlow.Name())
	}
	w := NewOnboarding(api, kind, opts)
	w.record = st.Record
	w.step = st.Step
	if st.Errors != nil {
		w.errors = st.Errors
	}
	return w, nil
}
