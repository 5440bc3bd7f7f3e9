package http

import (
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/auth"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/catalog"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/config"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/dashboard"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/testutil"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/wizard"
)

type testServer struct {
	URL string
	API *testutil.FakeAPI
	Key *rsa.PrivateKey
}

func newTestServer(t *testing.T, limits config.RateLimit) *testServer {
	t.Helper()
	verifier, key := testutil.CreateTestVerifier(t)
	perms, err := auth.LoadPermissions("../../permissions.yml")
	if err != nil {
		t.Fatalf("Failed to load permissions: %v", err)
	}

	api := testutil.NewFakeAPI(t)
	client := apiclient.New(api.URL(), 2*time.Second, nil)

	manager := wizard.NewManager(wizard.ManagerConfig{Patients: client, Facilities: client, TTL: time.Hour})
	dashSvc := dashboard.NewService(client, nil, nil)
	hub := dashboard.NewHub(dashboard.HubConfig{Service: dashSvc, Interval: time.Hour})

	handler := SetupRouter(Deps{
		Verifier:       verifier,
		Permissions:    perms,
		AllowedOrigins: []string{"http://localhost:3000"},
		RateLimit:      limits,
		Wizards:        wizard.NewHandler(wizard.NewService(manager, nil, nil), nil),
		Dashboard:      dashboard.NewHandler(dashSvc, hub, nil),
		Catalog: catalog.NewHandler(
			catalog.NewService(client, nil, time.Minute, nil, nil),
			catalog.NewPrescriptionService(client, nil),
			nil,
		),
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{URL: srv.URL, API: api, Key: key}
}

type openedSession struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func TestRouter_Health(t *testing.T) {
	ts := newTestServer(t, config.RateLimit{})
	resp := testutil.NewHTTPTestClient(ts.URL, "").GET(t, "/health")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("Expected a request id header")
	}
}

func TestRouter_RequiresToken(t *testing.T) {
	ts := newTestServer(t, config.RateLimit{})
	resp := testutil.NewHTTPTestClient(ts.URL, "").POST(t, "/wizards/registration", nil)
	testutil.AssertStatusCode(t, resp, http.StatusUnauthorized)
}

func TestRouter_RolePermissions(t *testing.T) {
	ts := newTestServer(t, config.RateLimit{})
	ts.API.Reply(http.MethodGet, apiclient.PathPatients, map[string]interface{}{"items": []interface{}{}, "total": 0})
	ts.API.Reply(http.MethodGet, apiclient.PathClinics, map[string]interface{}{"items": []interface{}{}, "total": 0})
	ts.API.Reply(http.MethodGet, apiclient.PathDoctorAppointments, map[string]interface{}{"items": []interface{}{}, "total": 0})
	ts.API.Reply(http.MethodGet, apiclient.PathMedicinesSearch, []interface{}{})

	assigner := testutil.GenerateAssignerToken(t, ts.Key)
	clinic := testutil.GenerateClinicToken(t, ts.Key, "clinic-1")
	doctor := testutil.GenerateJuniorDoctorToken(t, ts.Key, "clinic-1")

	prescription := map[string]interface{}{
		"patientId": "p-1",
		"medicines": []map[string]string{{"medicineName": "Paracetamol", "dosage": "500mg"}},
	}

	tests := []struct {
		name       string
		token      string
		method     string
		path       string
		body       interface{}
		wantStatus int
	}{
		{"clinic opens registration", clinic, http.MethodPost, "/wizards/registration", nil, http.StatusCreated},
		{"assigner cannot open registration", assigner, http.MethodPost, "/wizards/registration", nil, http.StatusForbidden},
		{"assigner opens onboarding", assigner, http.MethodPost, "/wizards/onboarding", map[string]string{"kind": "clinic"}, http.StatusCreated},
		{"doctor cannot onboard", doctor, http.MethodPost, "/wizards/onboarding", map[string]string{"kind": "lab"}, http.StatusForbidden},
		{"clinic lists patients", clinic, http.MethodGet, "/dashboard/patients?page=1&limit=10", nil, http.StatusOK},
		{"doctor cannot list patients", doctor, http.MethodGet, "/dashboard/patients", nil, http.StatusForbidden},
		{"assigner lists clinics", assigner, http.MethodGet, "/dashboard/clinics", nil, http.StatusOK},
		{"doctor lists appointments", doctor, http.MethodGet, "/dashboard/appointments", nil, http.StatusOK},
		{"unknown worklist", clinic, http.MethodGet, "/dashboard/labs", nil, http.StatusNotFound},
		{"doctor searches medicines", doctor, http.MethodGet, "/catalog/medicines?q=para", nil, http.StatusOK},
		{"clinic cannot add medicines", clinic, http.MethodPost, "/catalog/medicines", map[string]string{"name": "X"}, http.StatusForbidden},
		{"doctor writes prescription", doctor, http.MethodPost, "/prescriptions", prescription, http.StatusCreated},
		{"clinic cannot write prescription", clinic, http.MethodPost, "/prescriptions", prescription, http.StatusForbidden},
	}
	ts.API.Reply(http.MethodPost, apiclient.PathPrescriptions, map[string]string{"prescriptionId": "rx-1"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testutil.NewHTTPTestClient(ts.URL, tt.token).Do(t, tt.method, tt.path, tt.body)
			testutil.AssertStatusCode(t, resp, tt.wantStatus)
		})
	}
}

func TestRouter_ForwardsCallerToken(t *testing.T) {
	ts := newTestServer(t, config.RateLimit{})
	ts.API.Reply(http.MethodGet, apiclient.PathPatients, map[string]interface{}{"items": []interface{}{}, "total": 0})
	token := testutil.GenerateClinicToken(t, ts.Key, "clinic-1")

	resp := testutil.NewHTTPTestClient(ts.URL, token).GET(t, "/dashboard/patients?search=ravi")
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	reqs := ts.API.Requests()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 upstream request, got %d", len(reqs))
	}
	if reqs[0].Authorization != "Bearer "+token {
		t.Errorf("Expected caller token upstream, got %q", reqs[0].Authorization)
	}
	if reqs[0].Query.Get("search") != "ravi" {
		t.Errorf("Expected search to be forwarded, got %v", reqs[0].Query)
	}
}

func TestRouter_WizardFlowAndRateLimit(t *testing.T) {
	ts := newTestServer(t, config.RateLimit{SubmitPerMinute: 1})
	ts.API.Reply(http.MethodGet, "/patients/check/9876543210", map[string]interface{}{"exists": false})
	client := testutil.NewHTTPTestClient(ts.URL, testutil.GenerateClinicToken(t, ts.Key, "clinic-1"))

	var opened openedSession
	resp := client.POST(t, "/wizards/registration", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	testutil.DecodeJSON(t, resp, &opened)
	if opened.Data.ID == "" {
		t.Fatal("Expected a session id")
	}

	resp = client.POST(t, "/wizards/"+opened.Data.ID+"/check", map[string]string{"phone": "9876543210"})
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	resp = client.POST(t, "/wizards/"+opened.Data.ID+"/check", map[string]string{"phone": "9876543210"})
	testutil.AssertStatusCode(t, resp, http.StatusTooManyRequests)

	if n := ts.API.Count(http.MethodGet, "/patients/check/9876543210"); n != 1 {
		t.Errorf("Expected 1 lookup, got %d", n)
	}

	// Another user cannot see the session.
	other := testutil.NewHTTPTestClient(ts.URL, testutil.GenerateTestJWT(t, ts.Key, "clinic-999", "clinic-1", []string{"CLINIC"}))
	resp = other.GET(t, "/wizards/"+opened.Data.ID)
	testutil.AssertStatusCode(t, resp, http.StatusNotFound)
}

func TestRouter_CORSPreflight(t *testing.T) {
	ts := newTestServer(t, config.RateLimit{})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/wizards/registration", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Expected allowed origin, got %q", got)
	}

	req, _ = http.NewRequest(http.MethodOptions, ts.URL+"/wizards/registration", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp2.Body.Close()
	if got := resp2.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no allowed origin, got %q", got)
	}
}

func TestRouter_CatalogUpstreamFailure(t *testing.T) {
	ts := newTestServer(t, config.RateLimit{})
	ts.API.Fail(http.MethodGet, apiclient.PathTestsSearch, http.StatusServiceUnavailable, "Catalog is offline")

	doctor := testutil.GenerateJuniorDoctorToken(t, ts.Key, "clinic-1")
	resp := testutil.NewHTTPTestClient(ts.URL, doctor).GET(t, "/catalog/tests?q=cbc")
	testutil.AssertStatusCode(t, resp, http.StatusBadGateway)

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	testutil.DecodeJSON(t, resp, &body)
	if body.Error != "upstream_error" || body.Message != "Catalog is offline" {
		t.Errorf("Unexpected error body: %+v", body)
	}
}
