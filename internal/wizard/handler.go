package wizard

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/auth"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/intake"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	maxUploadBytes   = 64 << 20
	multipartMemory  = 16 << 20
	maxJSONBodyBytes = 1 << 20
)

type Handler struct {
	service ServiceInterface
	log     *zap.Logger
}

func NewHandler(service ServiceInterface, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, log: log}
}

// owner returns the authenticated user id or writes a 401.
func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	pr, ok := auth.FromContext(r.Context())
	if !ok || pr.UserID == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "User not authenticated", nil)
		return "", false
	}
	return pr.UserID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error(), nil)
		return false
	}
	return true
}

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "Index must be an integer", nil)
		return 0, false
	}
	return idx, true
}

func (h *Handler) OpenRegistration(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	view, err := h.service.OpenRegistration(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Registration wizard opened", view)
}

func (h *Handler) OpenEdit(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	var req OpenEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.service.OpenEdit(r.Context(), userID, req.PatientID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Edit wizard opened", view)
}

func (h *Handler) OpenOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	var req OpenOnboardingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.service.OpenOnboarding(r.Context(), userID, req.Kind)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Onboarding wizard opened", view)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, "", view)
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	if err := h.service.Close(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateField(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	var req FieldUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.service.UpdateField(r.Context(), userID, mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, "", view)
}

func (h *Handler) UpdateStaging(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	var req FieldUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.service.UpdateStaging(r.Context(), userID, mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, "", view)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	res, err := h.service.AddItem(r.Context(), userID, vars["id"], vars["list"])
	if err != nil {
		h.fail(w, err)
		return
	}
	msg := "Item added"
	if !res.Added {
		msg = "Nothing to add"
	}
	respondJSON(w, http.StatusOK, msg, res)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	idx, ok := pathIndex(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	view, err := h.service.RemoveItem(r.Context(), userID, vars["id"], vars["list"], idx)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, "", view)
}

// AddDocuments accepts multipart/form-data with one or more "files" parts.
// Optional "documentType" and "description" values apply to the file at the
// same position.
func (h *Handler) AddDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid multipart payload: "+err.Error(), nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	uploads := uploadsFromForm(r.MultipartForm)
	if len(uploads) == 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "At least one file is required", nil)
		return
	}

	res, err := h.service.AddDocuments(r.Context(), userID, mux.Vars(r)["id"], uploads)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, strconv.Itoa(len(res.Added))+" document(s) added", res)
}

func uploadsFromForm(form *multipart.Form) []intake.Upload {
	files := form.File["files"]
	types := form.Value["documentType"]
	descriptions := form.Value["description"]

	uploads := make([]intake.Upload, 0, len(files))
	for i, fh := range files {
		u := intake.Upload{
			FileName: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Size:     fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		}
		if i < len(types) {
			u.DocumentType = types[i]
		}
		if i < len(descriptions) {
			u.Description = descriptions[i]
		}
		uploads = append(uploads, u)
	}
	return uploads
}

func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	idx, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var req DocumentUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.service.UpdateDocument(r.Context(), userID, mux.Vars(r)["id"], idx, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, "", view)
}

func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	idx, ok := pathIndex(w, r)
	if !ok {
		return
	}
	view, err := h.service.RemoveDocument(r.Context(), userID, mux.Vars(r)["id"], idx)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, "", view)
}

func (h *Handler) CheckExisting(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	var req CheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.service.CheckExisting(r.Context(), userID, mux.Vars(r)["id"], req.Phone)
	if err != nil {
		h.fail(w, err)
		return
	}
	msg := "New patient"
	if res.Exists {
		msg = "Existing patient found"
	}
	respondJSON(w, http.StatusOK, msg, res)
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	view, err := h.service.Advance(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, "", view)
}

func (h *Handler) Retreat(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	view, err := h.service.Retreat(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, "", view)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	res, err := h.service.Submit(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, "Submitted successfully", res)
}

// fail maps service errors onto HTTP responses.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var verr *intake.ValidationError
	var upErr *UpstreamError
	var apiErr *apiclient.Error

	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusUnprocessableEntity, "validation_error", "Please correct the highlighted fields", verr.Fields)
	case errors.Is(err, ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, intake.ErrSubmitInProgress):
		respondError(w, http.StatusConflict, "submit_in_progress", err.Error(), nil)
	case errors.Is(err, intake.ErrTerminalStep),
		errors.Is(err, intake.ErrWrongStep),
		errors.Is(err, intake.ErrGateRequired),
		errors.Is(err, intake.ErrExistenceResolved):
		respondError(w, http.StatusConflict, "invalid_step", err.Error(), nil)
	case errors.Is(err, intake.ErrUnknownField),
		errors.Is(err, intake.ErrInvalidValue),
		errors.Is(err, intake.ErrUnknownList),
		errors.Is(err, intake.ErrUnknownKind),
		errors.Is(err, ErrUnsupported):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	case errors.As(err, &upErr):
		respondError(w, http.StatusBadGateway, "upstream_error", upErr.Message, nil)
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		respondError(w, http.StatusNotFound, "not_found", apiErr.Error(), nil)
	case errors.As(err, &apiErr):
		respondError(w, http.StatusBadGateway, "upstream_error", apiErr.Error(), nil)
	default:
		h.log.Error("wizard request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "Something went wrong. Please try again.", nil)
	}
}

func respondJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func respondError(w http.ResponseWriter, statusCode int, errorType, message string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Success: false,
		Error:   errorType,
		Message: message,
		Fields:  fields,
	})
}
