package intake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"go.uber.org/zap"
)

var (
	ErrUnknownField      = errors.New("unknown field")
	ErrInvalidValue      = errors.New("invalid value")
	ErrUnknownList       = errors.New("unknown list")
	ErrTerminalStep      = errors.New("already at the final step, submit instead")
	ErrWrongStep         = errors.New("operation not available at the current step")
	ErrGateRequired      = errors.New("patient lookup is required before continuing")
	ErrExistenceResolved = errors.New("patient existence already resolved for this session")
	ErrSubmitInProgress  = errors.New("submission already in progress")
	ErrSubmitFailed      = errors.New("submission failed")
	ErrLookupFailed      = errors.New("patient lookup failed")
	ErrUnknownKind       = errors.New("unknown wizard kind")
)

// SubmitErrorKey is the error-map slot for submission and lookup failures.
const SubmitErrorKey = "submit"

// ValidationError carries the field to message map produced by a step check.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

// Kind names a wizard variant.
type Kind string

const (
	KindRegistration Kind = "registration"
	KindEdit         Kind = "edit"
	KindOnboarding   Kind = "onboarding"
)

// Outcome is handed to the success callback with the identifiers the
// upstream API returned.
type Outcome struct {
	Kind          Kind           `json:"kind"`
	PatientExists bool           `json:"patientExists,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	PatientID     string         `json:"patientId,omitempty"`
	Patient       *apiclient.Ref `json:"patient,omitempty"`
	Appointment   *apiclient.Ref `json:"appointment,omitempty"`
	Visit         *apiclient.Ref `json:"visit,omitempty"`
	FacilityKind  FacilityKind   `json:"facilityKind,omitempty"`
	Facility      *apiclient.Ref `json:"facility,omitempty"`
}

// setPatient records the ref returned by POST /patients. An empty ref carries
// nothing worth reporting.
func (o *Outcome) setPatient(ref *apiclient.Ref) {
	if ref == nil || *ref == (apiclient.Ref{}) {
		return
	}
	o.Patient = ref
	if ref.ID != "" {
		o.PatientID = ref.ID
	}
}

// View is a read-only picture of a wizard for rendering.
type View struct {
	Kind           Kind              `json:"kind"`
	Step           Step              `json:"step"`
	StepIndex      int               `json:"stepIndex"`
	Steps          []Step            `json:"steps"`
	Record         interface{}       `json:"record"`
	Staging        *Staging          `json:"staging,omitempty"`
	Errors         map[string]string `json:"errors"`
	Phone          string            `json:"phone,omitempty"`
	PatientExists  *bool             `json:"patientExists,omitempty"`
	DocumentsAdded int               `json:"documentsAdded,omitempty"`
	FacilityKind   FacilityKind      `json:"facilityKind,omitempty"`
	Submitting     bool              `json:"submitting"`
}

// Wizard is the behaviour common to every wizard variant. Optional
// capabilities are exposed through ListEditor, DocumentEditor and
// ExistenceGate.
type Wizard interface {
	Kind() Kind
	View() View
	Update(p FieldPath, value interface{}) error
	Advance() error
	Retreat()
	Submit(ctx context.Context) (*Outcome, error)
	Reset()
	MarshalState() ([]byte, error)
}

type ListEditor interface {
	UpdateStaging(p FieldPath, value interface{}) error
	AddItem(list ListKind) (bool, error)
	RemoveItem(list ListKind, index int) error
}

type DocumentEditor interface {
	AddDocuments(ctx context.Context, files []Upload) ([]Document, []FileError, error)
	UpdateDocument(index int, field string, value string) error
	RemoveDocument(index int) error
}

type ExistenceGate interface {
	CheckExisting(ctx context.Context, phone string) (bool, error)
}

// Options configure a wizard. Zero values are replaced with defaults.
type Options struct {
	Clock     func() time.Time
	Logger    *zap.Logger
	OnSuccess func(ctx context.Context, out Outcome)
	Encoder   DocumentEncoder
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Encoder == nil {
		o.Encoder = DataURLEncoder{}
	}
	return o
}

// base holds the step controller state and the submit latch shared by all
// wizards. mu serialises every operation on one wizard.
type base struct {
	mu       sync.Mutex
	inFlight atomic.Bool
	flow     *Flow
	step     Step
	errors   map[string]string
	opts     Options
}

func (b *base) init(flow *Flow, opts Options) {
	b.flow = flow
	b.step = flow.First()
	b.errors = map[string]string{}
	b.opts = opts.withDefaults()
}

func (b *base) now() time.Time {
	return b.opts.Clock()
}

// busy reports ErrSubmitInProgress while a submission owns the record.
func (b *base) busy() error {
	if b.inFlight.Load() {
		return ErrSubmitInProgress
	}
	return nil
}

func (b *base) fire(ev Event) error {
	next, err := b.flow.Next(b.step, ev)
	if err != nil {
		return err
	}
	b.step = next
	return nil
}

// check runs a step validator and replaces the error map with its result.
func (b *base) check(fields map[string]string) error {
	b.errors = fields
	if b.errors == nil {
		b.errors = map[string]string{}
	}
	if len(b.errors) > 0 {
		return &ValidationError{Fields: copyErrors(b.errors)}
	}
	return nil
}

func (b *base) retreat() {
	if next, err := b.flow.Next(b.step, EventRetreat); err == nil {
		b.step = next
	}
	b.errors = map[string]string{}
}

func (b *base) view(kind Kind, record interface{}) View {
	return View{
		Kind:       kind,
		Step:       b.step,
		StepIndex:  b.flow.Index(b.step),
		Steps:      b.flow.Sequence(),
		Record:     record,
		Errors:     copyErrors(b.errors),
		Submitting: b.inFlight.Load(),
	}
}

// submission is the network half of a submit, run without holding mu.
type submission func(ctx context.Context) (*Outcome, error)

// submit runs the pipeline: prepare validates and builds the payloads under
// the lock, the latch is claimed before the first call, and the result is
// applied under the lock again. fallback is used when the upstream error
// carries no message.
func (b *base) submit(ctx context.Context, prepare func() (submission, error), reset func(), fallback string) (*Outcome, error) {
	b.mu.Lock()
	if b.inFlight.Load() {
		b.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	run, err := prepare()
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if !b.inFlight.CompareAndSwap(false, true) {
		b.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	b.mu.Unlock()

	out, err := run(ctx)

	b.mu.Lock()
	b.inFlight.Store(false)
	if err != nil {
		b.errors = map[string]string{SubmitErrorKey: submitMessage(err, fallback)}
		b.mu.Unlock()
		b.opts.Logger.Warn("wizard submission failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	reset()
	b.mu.Unlock()

	b.opts.Logger.Info("wizard submission succeeded", zap.String("kind", string(out.Kind)))
	if b.opts.OnSuccess != nil {
		b.opts.OnSuccess(ctx, *out)
	}
	return out, nil
}

// submitMessage reduces an upstream failure to the text shown in the submit
// slot.
func submitMessage(err error, fallback string) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

func copyErrors(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
