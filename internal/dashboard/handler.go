package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/pagination"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Fetcher loads a live worklist page.
type Fetcher interface {
	Fetch(ctx context.Context, worklist, search string, params pagination.Params) (*Page, error)
}

var _ Fetcher = (*Service)(nil)

const keepAliveInterval = 25 * time.Second

type Handler struct {
	fetcher Fetcher
	hub     *Hub
	log     *zap.Logger
}

func NewHandler(fetcher Fetcher, hub *Hub, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{fetcher: fetcher, hub: hub, log: log}
}

type AutoRefreshRequest struct {
	Enabled *bool `json:"enabled"`
}

type AutoRefreshStatus struct {
	Worklist        string `json:"worklist"`
	Enabled         bool   `json:"enabled"`
	IntervalSeconds int    `json:"intervalSeconds"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// List handles GET /dashboard/{worklist}?search=&page=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.fetcher.Fetch(r.Context(), mux.Vars(r)["worklist"], r.URL.Query().Get("search"), pagination.ParseParams(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, "", page)
}

// Snapshot handles GET /dashboard/{worklist}/snapshot and returns the page the
// background poller last stored.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	p, err := h.hub.Poller(mux.Vars(r)["worklist"])
	if err != nil {
		h.fail(w, err)
		return
	}
	page, err := p.Snapshot()
	if errors.Is(err, ErrNoSnapshot) {
		respondError(w, http.StatusNotFound, "not_ready", "Worklist has not been loaded yet")
		return
	}
	if page == nil {
		h.fail(w, err)
		return
	}
	// A stale page is still served; the failure shows up in the logs.
	respondJSON(w, http.StatusOK, "", page)
}

// Refresh handles POST /dashboard/{worklist}/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["worklist"]
	if _, err := h.hub.Poller(name); err != nil {
		h.fail(w, err)
		return
	}
	h.hub.RequestRefresh(name)
	respondJSON(w, http.StatusAccepted, "Refresh requested", nil)
}

// AutoRefresh handles GET and PUT /dashboard/{worklist}/auto-refresh.
func (h *Handler) AutoRefresh(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["worklist"]
	p, err := h.hub.Poller(name)
	if err != nil {
		h.fail(w, err)
		return
	}
	if r.Method == http.MethodPut {
		var req AutoRefreshRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
			return
		}
		if req.Enabled == nil {
			respondError(w, http.StatusBadRequest, "validation_error", "enabled is required")
			return
		}
		p.SetEnabled(*req.Enabled)
	}
	respondJSON(w, http.StatusOK, "", AutoRefreshStatus{
		Worklist:        name,
		Enabled:         p.Enabled(),
		IntervalSeconds: int(p.Interval() / time.Second),
	})
}

// Events handles GET /dashboard/events as a server-sent event stream of
// worklist updates.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal_error", "Streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	b := h.hub.Broadcaster()
	ch := b.Register()
	defer b.Unregister(ch)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: worklist\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var apiErr *apiclient.Error
	switch {
	case errors.Is(err, ErrUnknownWorklist):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &apiErr):
		respondError(w, http.StatusBadGateway, "upstream_error", "Failed to load worklist. Please try again.")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "upstream_timeout", "Worklist request timed out")
	default:
		h.log.Error("dashboard request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "Something went wrong. Please try again.")
	}
}

func respondJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(SuccessResponse{Success: true, Message: message, Data: data})
}

func respondError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Success: false, Error: errorType, Message: message})
}
