package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/intake"
	"go.uber.org/zap"
)

// Service exposes wizard operations addressed by session id on behalf of
// the session owner.
type Service struct {
	manager *Manager
	metrics MetricsRecorder
	log     *zap.Logger
}

func NewService(manager *Manager, metrics MetricsRecorder, log *zap.Logger) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{manager: manager, metrics: metrics, log: log}
}

func (s *Service) OpenRegistration(ctx context.Context, ownerID string) (*SessionView, error) {
	sess, err := s.manager.OpenRegistration(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	v := viewOf(sess)
	return &v, nil
}

func (s *Service) OpenEdit(ctx context.Context, ownerID, patientID string) (*SessionView, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, &intake.ValidationError{Fields: map[string]string{"patientId": "Patient ID is required"}}
	}
	sess, err := s.manager.OpenEdit(ctx, ownerID, patientID)
	if err != nil {
		s.log.Warn("failed to open edit wizard", zap.String("patient_id", patientID), zap.Error(err))
		return nil, err
	}
	v := viewOf(sess)
	return &v, nil
}

func (s *Service) OpenOnboarding(ctx context.Context, ownerID, kind string) (*SessionView, error) {
	fk, err := intake.ParseFacilityKind(kind)
	if err != nil {
		return nil, err
	}
	sess, err := s.manager.OpenOnboarding(ctx, ownerID, fk)
	if err != nil {
		return nil, err
	}
	v := viewOf(sess)
	return &v, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (*SessionView, error) {
	sess, err := s.manager.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	v := viewOf(sess)
	return &v, nil
}

func (s *Service) Close(ctx context.Context, ownerID, id string) error {
	return s.manager.Close(ctx, ownerID, id)
}

// apply runs op against the session, checkpoints it and returns the fresh
// view. The view is returned alongside op's error so callers can render the
// error map.
func (s *Service) apply(ctx context.Context, ownerID, id, operation string, op func(sess *Session) error) (*SessionView, error) {
	sess, err := s.manager.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	kind := string(sess.Wizard.Kind())
	s.metrics.RecordWizardOperation(ctx, kind, operation)

	opErr := op(sess)
	if !errors.Is(opErr, ErrUnsupported) {
		s.manager.Checkpoint(ctx, sess)
	}
	v := viewOf(sess)
	if opErr != nil {
		s.log.Debug("wizard operation rejected",
			zap.String("session_id", id),
			zap.String("kind", kind),
			zap.String("operation", operation),
			zap.Error(opErr),
		)
	}
	return &v, opErr
}

func (s *Service) UpdateField(ctx context.Context, ownerID, id string, req FieldUpdateRequest) (*SessionView, error) {
	return s.apply(ctx, ownerID, id, "update_field", func(sess *Session) error {
		return sess.Wizard.Update(req.FieldPath, valueOf(req))
	})
}

func (s *Service) UpdateStaging(ctx context.Context, ownerID, id string, req FieldUpdateRequest) (*SessionView, error) {
	return s.apply(ctx, ownerID, id, "update_staging", func(sess *Session) error {
		le, ok := sess.Wizard.(intake.ListEditor)
		if !ok {
			return ErrUnsupported
		}
		return le.UpdateStaging(req.FieldPath, valueOf(req))
	})
}

// valueOf hands JSON null through as nil so the field is reset.
func valueOf(req FieldUpdateRequest) interface{} {
	raw := strings.TrimSpace(string(req.Value))
	if raw == "" || raw == "null" {
		return nil
	}
	return req.Value
}

func (s *Service) AddItem(ctx context.Context, ownerID, id, list string) (*ListResult, error) {
	var added bool
	v, err := s.apply(ctx, ownerID, id, "add_item", func(sess *Session) error {
		le, ok := sess.Wizard.(intake.ListEditor)
		if !ok {
			return ErrUnsupported
		}
		kind, err := intake.ParseListKind(list)
		if err != nil {
			return err
		}
		added, err = le.AddItem(kind)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ListResult{Added: added, Session: *v}, nil
}

func (s *Service) RemoveItem(ctx context.Context, ownerID, id, list string, index int) (*SessionView, error) {
	return s.apply(ctx, ownerID, id, "remove_item", func(sess *Session) error {
		le, ok := sess.Wizard.(intake.ListEditor)
		if !ok {
			return ErrUnsupported
		}
		kind, err := intake.ParseListKind(list)
		if err != nil {
			return err
		}
		return le.RemoveItem(kind, index)
	})
}

func (s *Service) AddDocuments(ctx context.Context, ownerID, id string, files []intake.Upload) (*DocumentsResult, error) {
	var added []intake.Document
	var rejected []intake.FileError
	v, err := s.apply(ctx, ownerID, id, "add_documents", func(sess *Session) error {
		de, ok := sess.Wizard.(intake.DocumentEditor)
		if !ok {
			return ErrUnsupported
		}
		var err error
		added, rejected, err = de.AddDocuments(ctx, files)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDocumentsRejected(ctx, len(rejected))
	if added == nil {
		added = []intake.Document{}
	}
	if rejected == nil {
		rejected = []intake.FileError{}
	}
	return &DocumentsResult{Added: added, Rejected: rejected, Session: *v}, nil
}

func (s *Service) UpdateDocument(ctx context.Context, ownerID, id string, index int, req DocumentUpdateRequest) (*SessionView, error) {
	return s.apply(ctx, ownerID, id, "update_document", func(sess *Session) error {
		de, ok := sess.Wizard.(intake.DocumentEditor)
		if !ok {
			return ErrUnsupported
		}
		return de.UpdateDocument(index, req.Field, req.Value)
	})
}

func (s *Service) RemoveDocument(ctx context.Context, ownerID, id string, index int) (*SessionView, error) {
	return s.apply(ctx, ownerID, id, "remove_document", func(sess *Session) error {
		de, ok := sess.Wizard.(intake.DocumentEditor)
		if !ok {
			return ErrUnsupported
		}
		return de.RemoveDocument(index)
	})
}

func (s *Service) CheckExisting(ctx context.Context, ownerID, id, phone string) (*LookupResult, error) {
	var exists bool
	v, err := s.apply(ctx, ownerID, id, "check_existing", func(sess *Session) error {
		gate, ok := sess.Wizard.(intake.ExistenceGate)
		if !ok {
			return ErrUnsupported
		}
		var err error
		exists, err = gate.CheckExisting(ctx, phone)
		return err
	})
	if err != nil {
		return nil, upstreamFailure(v, err)
	}
	return &LookupResult{Exists: exists, Session: *v}, nil
}

func (s *Service) Advance(ctx context.Context, ownerID, id string) (*SessionView, error) {
	return s.apply(ctx, ownerID, id, "advance", func(sess *Session) error {
		return sess.Wizard.Advance()
	})
}

func (s *Service) Retreat(ctx context.Context, ownerID, id string) (*SessionView, error) {
	return s.apply(ctx, ownerID, id, "retreat", func(sess *Session) error {
		sess.Wizard.Retreat()
		return nil
	})
}

func (s *Service) Submit(ctx context.Context, ownerID, id string) (*SubmitResult, error) {
	var out *intake.Outcome
	var kind string
	v, err := s.apply(ctx, ownerID, id, "submit", func(sess *Session) error {
		kind = string(sess.Wizard.Kind())
		var err error
		out, err = sess.Wizard.Submit(ctx)
		return err
	})
	if kind != "" {
		s.metrics.RecordSubmission(ctx, kind, submissionResult(err))
	}
	if err != nil {
		if errors.Is(err, intake.ErrSubmitFailed) {
			s.log.Warn("wizard submission failed", zap.String("session_id", id), zap.String("kind", kind), zap.Error(err))
		}
		return nil, upstreamFailure(v, err)
	}
	if out == nil {
		return nil, fmt.Errorf("wizard %s returned no outcome", id)
	}
	return &SubmitResult{Outcome: *out, Session: *v}, nil
}

func submissionResult(err error) string {
	var verr *intake.ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, intake.ErrSubmitInProgress):
		return "busy"
	default:
		return "failed"
	}
}

// UpstreamError is a failed upstream call together with the message the
// wizard put in its submit slot.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// upstreamFailure pairs a failed submission or lookup with the message the
// wizard put in its submit slot. Other errors are returned unchanged.
func upstreamFailure(v *SessionView, err error) error {
	if v == nil || !(errors.Is(err, intake.ErrSubmitFailed) || errors.Is(err, intake.ErrLookupFailed)) {
		return err
	}
	msg := v.Errors[intake.SubmitErrorKey]
	if msg == "" {
		return err
	}
	return &UpstreamError{Message: msg, Err: err}
}
