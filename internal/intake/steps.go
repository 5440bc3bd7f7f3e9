package intake

import "fmt"

// Step is one screen of a wizard.
type Step string

const (
	StepPhoneEntry       Step = "phone-entry"
	StepPermanentDetails Step = "permanent-details"
	StepMedicalHistory   Step = "medical-history"
	StepDocuments        Step = "documents"
	StepVisit            Step = "visit"

	StepPersonal Step = "personal"
	StepMedical  Step = "medical"

	StepDetails     Step = "details"
	StepContact     Step = "contact"
	StepAddress     Step = "address"
	StepCredentials Step = "credentials"
)

// Event drives a transition.
type Event string

const (
	EventAdvance         Event = "advance"
	EventRetreat         Event = "retreat"
	EventPatientFound    Event = "patient-found"
	EventPatientNotFound Event = "patient-not-found"
)

type edge struct {
	from Step
	on   Event
}

// Flow is an ordered step sequence plus the transition table over it.
type Flow struct {
	name     string
	sequence []Step
	table    map[edge]Step
}

// linear builds a flow whose advance and retreat edges follow steps in order.
func linear(name string, steps ...Step) *Flow {
	f := &Flow{
		name:     name,
		sequence: steps,
		table:    make(map[edge]Step, 2*len(steps)),
	}
	for i := 0; i+1 < len(steps); i++ {
		f.table[edge{steps[i], EventAdvance}] = steps[i+1]
		f.table[edge{steps[i+1], EventRetreat}] = steps[i]
	}
	return f
}

func (f *Flow) with(from Step, on Event, to Step) *Flow {
	f.table[edge{from, on}] = to
	return f
}

func (f *Flow) without(from Step, on Event) *Flow {
	delete(f.table, edge{from, on})
	return f
}

func (f *Flow) Name() string { return f.name }

func (f *Flow) First() Step { return f.sequence[0] }

func (f *Flow) Last() Step { return f.sequence[len(f.sequence)-1] }

// Sequence returns a copy of the ordered steps.
func (f *Flow) Sequence() []Step {
	out := make([]Step, len(f.sequence))
	copy(out, f.sequence)
	return out
}

// Index returns the position of s in the sequence, or -1.
func (f *Flow) Index(s Step) int {
	for i, step := range f.sequence {
		if step == s {
			return i
		}
	}
	return -1
}

func (f *Flow) Contains(s Step) bool { return f.Index(s) >= 0 }

// Next looks up the transition for (from, on).
func (f *Flow) Next(from Step, on Event) (Step, error) {
	if to, ok := f.table[edge{from, on}]; ok {
		return to, nil
	}
	if on == EventAdvance && from == f.Last() {
		return from, ErrTerminalStep
	}
	return from, fmt.Errorf("%w: no %s transition from %s in %s flow", ErrWrongStep, on, from, f.name)
}

var (
	registrationSteps = []Step{StepPhoneEntry, StepPermanentDetails, StepMedicalHistory, StepDocuments, StepVisit}

	// Until the lookup resolves, phone-entry is left only through the gate.
	pendingFlow = linear("registration", registrationSteps...).
			without(StepPhoneEntry, EventAdvance).
			with(StepPhoneEntry, EventPatientFound, StepDocuments).
			with(StepPhoneEntry, EventPatientNotFound, StepPermanentDetails)

	newPatientFlow      = linear("new-patient", registrationSteps...)
	existingPatientFlow = linear("existing-patient", StepPhoneEntry, StepDocuments, StepVisit)

	editFlow       = linear("edit", StepPersonal, StepMedical, StepVisit)
	onboardingFlow = linear("onboarding", StepDetails, StepContact, StepAddress, StepCredentials)
)

// registrationFlow picks the flow for the current existence state.
func registrationFlow(exists *bool) *Flow {
	switch {
	case exists == nil:
		return pendingFlow
	case *exists:
		return existingPatientFlow
	default:
		return newPatientFlow
	}
}
