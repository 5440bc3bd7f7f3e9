package http

import (
	"net/http"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/auth"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/catalog"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/config"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/dashboard"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/wizard"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// Metrics is everything the router records. *telemetry.Metrics satisfies it.
type Metrics interface {
	auth.MetricsRecorder
	auth.PermissionMetricsRecorder
	HTTPMetricsRecorder
}

// Deps are the handlers and policies the router is built from.
type Deps struct {
	ServiceName    string
	Verifier       *auth.Verifier
	Permissions    auth.Permissions
	Metrics        Metrics
	Logger         *zap.Logger
	AllowedOrigins []string
	RateLimit      config.RateLimit

	Wizards   *wizard.Handler
	Dashboard *dashboard.Handler
	Catalog   *catalog.Handler
}

type routes struct {
	deps Deps
	log  *zap.Logger
}

// protect authenticates the caller, checks the permission and forwards the
// caller's token upstream before running h behind any extra middleware.
func (rt routes) protect(gate func(http.Handler) http.Handler, h http.HandlerFunc, extra ...func(http.Handler) http.Handler) http.Handler {
	var next http.Handler = h
	for i := len(extra) - 1; i >= 0; i-- {
		next = extra[i](next)
	}
	next = forwardToken(next)
	next = gate(next)
	return auth.MiddlewareWithMetrics(rt.deps.Verifier, rt.log, rt.deps.Metrics)(next)
}

func (rt routes) perm(permission string) func(http.Handler) http.Handler {
	return auth.RequirePermissionWithMetrics(permission, rt.deps.Permissions, rt.log, rt.deps.Metrics)
}

func (rt routes) anyOf(permissions ...string) func(http.Handler) http.Handler {
	return requireAny(rt.deps.Permissions, rt.log, permissions...)
}

// SetupRouter initializes all routes for the application
func SetupRouter(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.ServiceName == "" {
		deps.ServiceName = "clinic-intake-service"
	}
	rt := routes{deps: deps, log: log}

	r := mux.NewRouter()
	r.Use(otelmux.Middleware(deps.ServiceName))
	r.Use(requestID)
	r.Use(observe(log, deps.Metrics))

	// Public health endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"` + deps.ServiceName + `"}`))
	}).Methods(http.MethodGet)

	if deps.Wizards != nil {
		rt.wizardRoutes(r)
	}
	if deps.Dashboard != nil {
		rt.dashboardRoutes(r)
	}
	if deps.Catalog != nil {
		rt.catalogRoutes(r)
	}

	return CORSMiddleware(deps.AllowedOrigins)(r)
}

func (rt routes) wizardRoutes(r *mux.Router) {
	h := rt.deps.Wizards
	submitLimit := limitPerUser(rt.deps.RateLimit.SubmitPerMinute)
	uploadLimit := limitPerUser(rt.deps.RateLimit.UploadPerMinute)

	r.Handle("/wizards/registration", rt.protect(rt.perm(auth.PermWizardRegistration), h.OpenRegistration)).Methods(http.MethodPost)
	r.Handle("/wizards/edit", rt.protect(rt.perm(auth.PermWizardEdit), h.OpenEdit)).Methods(http.MethodPost)
	r.Handle("/wizards/onboarding", rt.protect(rt.perm(auth.PermWizardOnboarding), h.OpenOnboarding)).Methods(http.MethodPost)

	// Session routes only need some wizard permission; the manager rejects
	// sessions opened by someone else.
	session := rt.anyOf(auth.PermWizardRegistration, auth.PermWizardEdit, auth.PermWizardOnboarding)
	s := r.PathPrefix("/wizards/{id}").Subrouter()
	s.Handle("", rt.protect(session, h.GetSession)).Methods(http.MethodGet)
	s.Handle("", rt.protect(session, h.CloseSession)).Methods(http.MethodDelete)
	s.Handle("/fields", rt.protect(session, h.UpdateField)).Methods(http.MethodPatch)
	s.Handle("/staging", rt.protect(session, h.UpdateStaging)).Methods(http.MethodPatch)
	s.Handle("/lists/{list}", rt.protect(session, h.AddItem)).Methods(http.MethodPost)
	s.Handle("/lists/{list}/{index}", rt.protect(session, h.RemoveItem)).Methods(http.MethodDelete)
	s.Handle("/documents", rt.protect(session, h.AddDocuments, uploadLimit)).Methods(http.MethodPost)
	s.Handle("/documents/{index}", rt.protect(session, h.UpdateDocument)).Methods(http.MethodPatch)
	s.Handle("/documents/{index}", rt.protect(session, h.RemoveDocument)).Methods(http.MethodDelete)
	s.Handle("/check", rt.protect(session, h.CheckExisting, submitLimit)).Methods(http.MethodPost)
	s.Handle("/advance", rt.protect(session, h.Advance)).Methods(http.MethodPost)
	s.Handle("/retreat", rt.protect(session, h.Retreat)).Methods(http.MethodPost)
	s.Handle("/submit", rt.protect(session, h.Submit, submitLimit)).Methods(http.MethodPost)
}

func (rt routes) dashboardRoutes(r *mux.Router) {
	h := rt.deps.Dashboard
	all := dashboard.All()

	var anyDashboard []string
	for _, wl := range all {
		anyDashboard = append(anyDashboard, wl.Permission)
	}
	r.Handle("/dashboard/events", rt.protect(rt.anyOf(anyDashboard...), h.Events)).Methods(http.MethodGet)

	// One route set per worklist so each carries its own permission.
	for _, wl := range all {
		base := "/dashboard/{worklist:" + wl.Name + "}"
		gate := rt.perm(wl.Permission)
		r.Handle(base, rt.protect(gate, h.List)).Methods(http.MethodGet)
		r.Handle(base+"/snapshot", rt.protect(gate, h.Snapshot)).Methods(http.MethodGet)
		r.Handle(base+"/refresh", rt.protect(gate, h.Refresh)).Methods(http.MethodPost)
		r.Handle(base+"/auto-refresh", rt.protect(gate, h.AutoRefresh)).Methods(http.MethodGet, http.MethodPut)
	}
}

func (rt routes) catalogRoutes(r *mux.Router) {
	h := rt.deps.Catalog
	const catalogPath = "/catalog/{catalog:medicines|tests}"

	r.Handle(catalogPath, rt.protect(rt.perm(auth.PermCatalogSearch), h.Search)).Methods(http.MethodGet)
	r.Handle(catalogPath, rt.protect(rt.perm(auth.PermCatalogCreate), h.AddEntry)).Methods(http.MethodPost)

	r.Handle("/prescriptions", rt.protect(rt.perm(auth.PermPrescriptionWrite), h.CreatePrescription)).Methods(http.MethodPost)
	r.Handle("/prescriptions/{id}", rt.protect(rt.perm(auth.PermPrescriptionWrite), h.UpdatePrescription)).Methods(http.MethodPut)
}
