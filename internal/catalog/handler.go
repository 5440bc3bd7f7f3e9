package catalog

import (
	"context"
	"errors"
	"net/http"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/intake"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// SearchService is the catalog contract used by the handler.
type SearchService interface {
	Search(ctx context.Context, catalog, query string) (*SearchResult, error)
	AddEntry(ctx context.Context, catalog string, req NewEntryRequest) (json.RawMessage, error)
}

type PrescriptionWriter interface {
	Create(ctx context.Context, p Prescription) (*apiclient.Ref, error)
	Update(ctx context.Context, id string, p Prescription) (*apiclient.Ref, error)
}

var (
	_ SearchService      = (*Service)(nil)
	_ PrescriptionWriter = (*PrescriptionService)(nil)
)

type Handler struct {
	catalog       SearchService
	prescriptions PrescriptionWriter
	log           *zap.Logger
}

func NewHandler(catalog SearchService, prescriptions PrescriptionWriter, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{catalog: catalog, prescriptions: prescriptions, log: log}
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Search handles GET /catalog/{catalog}?q=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	res, err := h.catalog.Search(r.Context(), mux.Vars(r)["catalog"], r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, "", res)
}

// AddEntry handles POST /catalog/{catalog}
func (h *Handler) AddEntry(w http.ResponseWriter, r *http.Request) {
	var req NewEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.catalog.AddEntry(r.Context(), mux.Vars(r)["catalog"], req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Catalog entry added", entry)
}

// CreatePrescription handles POST /prescriptions
func (h *Handler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	var p Prescription
	if !decodeJSON(w, r, &p) {
		return
	}
	ref, err := h.prescriptions.Create(r.Context(), p)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Prescription created", ref)
}

// UpdatePrescription handles PUT /prescriptions/{id}
func (h *Handler) UpdatePrescription(w http.ResponseWriter, r *http.Request) {
	var p Prescription
	if !decodeJSON(w, r, &p) {
		return
	}
	ref, err := h.prescriptions.Update(r.Context(), mux.Vars(r)["id"], p)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, "Prescription updated", ref)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error(), nil)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var verr *intake.ValidationError
	var apiErr *apiclient.Error
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusUnprocessableEntity, "validation_error", "Please correct the highlighted fields", verr.Fields)
	case errors.Is(err, ErrUnknownCatalog):
		respondError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		respondError(w, http.StatusNotFound, "not_found", apiErr.Error(), nil)
	case errors.As(err, &apiErr):
		msg := apiErr.Message
		if msg == "" {
			msg = "Upstream request failed. Please try again."
		}
		respondError(w, http.StatusBadGateway, "upstream_error", msg, nil)
	default:
		h.log.Error("catalog request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "Something went wrong. Please try again.", nil)
	}
}

func respondJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(SuccessResponse{Success: true, Message: message, Data: data})
}

func respondError(w http.ResponseWriter, status int, errorType, message string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Success: false, Error: errorType, Message: message, Fields: fields})
}
