package wizard

import (
	"context"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/intake"
)

// ServiceInterface defines the contract for wizard session operations
type ServiceInterface interface {
	OpenRegistration(ctx context.Context, ownerID string) (*SessionView, error)
	OpenEdit(ctx context.Context, ownerID, patientID string) (*SessionView, error)
	OpenOnboarding(ctx context.Context, ownerID, kind string) (*SessionView, error)
	Get(ctx context.Context, ownerID, id string) (*SessionView, error)
	Close(ctx context.Context, ownerID, id string) error
	UpdateField(ctx context.Context, ownerID, id string, req FieldUpdateRequest) (*SessionView, error)
	UpdateStaging(ctx context.Context, ownerID, id string, req FieldUpdateRequest) (*SessionView, error)
	AddItem(ctx context.Context, ownerID, id, list string) (*ListResult, error)
	RemoveItem(ctx context.Context, ownerID, id, list string, index int) (*SessionView, error)
	AddDocuments(ctx context.Context, ownerID, id string, files []intake.Upload) (*DocumentsResult, error)
	UpdateDocument(ctx context.Context, ownerID, id string, index int, req DocumentUpdateRequest) (*SessionView, error)
	RemoveDocument(ctx context.Context, ownerID, id string, index int) (*SessionView, error)
	CheckExisting(ctx context.Context, ownerID, id, phone string) (*LookupResult, error)
	Advance(ctx context.Context, ownerID, id string) (*SessionView, error)
	Retreat(ctx context.Context, ownerID, id string) (*SessionView, error)
	Submit(ctx context.Context, ownerID, id string) (*SubmitResult, error)
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
