//go:build integration

package e2e

import (
	"context"
	"crypto/rsa"
	"database/sql"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/auth"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/catalog"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/config"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/dashboard"
	httpserver "github.com/WailSalutem-Health-Care/clinic-intake-service/internal/http"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/testutil"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/wizard"
)

const serviceToken = "service-token"

// TestServer is the whole service wired against a real Postgres draft store,
// an in-process upstream API and an in-memory event publisher.
type TestServer struct {
	Server        *httptest.Server
	DB            *sql.DB
	API           *testutil.FakeAPI
	MockPublisher *testutil.MockPublisher
	Hub           *dashboard.Hub
	PrivateKey    *rsa.PrivateKey
}

// SetupE2ETest creates a complete test environment. Tests are skipped when
// TEST_DATABASE_URL is not reachable.
func SetupE2ETest(t *testing.T) *TestServer {
	t.Helper()

	db := testutil.SetupTestDB(t)
	store := wizard.NewPostgresDraftStore(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("Failed to prepare draft table: %v", err)
	}
	testutil.CleanupDrafts(t, db)

	api := testutil.NewFakeAPI(t)
	publisher := testutil.NewMockPublisher()
	verifier, privateKey := testutil.CreateTestVerifier(t)

	ts := &TestServer{DB: db, API: api, MockPublisher: publisher, PrivateKey: privateKey}
	ts.start(t, verifier, store)
	return ts
}

// Restart replaces the HTTP server with a fresh process sharing the same
// database, as a redeploy would.
func (ts *TestServer) Restart(t *testing.T) {
	t.Helper()
	ts.Server.Close()
	ts.Hub.Stop()
	verifier, privateKey := testutil.CreateTestVerifier(t)
	ts.PrivateKey = privateKey
	ts.start(t, verifier, wizard.NewPostgresDraftStore(ts.DB))
}

func (ts *TestServer) start(t *testing.T, verifier *auth.Verifier, store wizard.DraftStore) {
	t.Helper()

	perms, err := auth.LoadPermissions("../../permissions.yml")
	if err != nil {
		t.Fatalf("Failed to load permissions: %v", err)
	}
	client := apiclient.New(ts.API.URL(), 5*time.Second, nil)

	dashSvc := dashboard.NewService(client, nil, nil)
	ts.Hub = dashboard.NewHub(dashboard.HubConfig{Service: dashSvc, Token: serviceToken, Interval: time.Hour})
	ts.Hub.Start(context.Background())

	manager := wizard.NewManager(wizard.ManagerConfig{
		Patients:   client,
		Facilities: client,
		Store:      store,
		Notifier:   wizard.NewEventNotifier(ts.MockPublisher, ts.Hub, nil),
		TTL:        time.Hour,
	})

	router := httpserver.SetupRouter(httpserver.Deps{
		Verifier:    verifier,
		Permissions: perms,
		RateLimit:   config.RateLimit{},
		Wizards:     wizard.NewHandler(wizard.NewService(manager, nil, nil), nil),
		Dashboard:   dashboard.NewHandler(dashSvc, ts.Hub, nil),
		Catalog: catalog.NewHandler(
			catalog.NewService(client, nil, time.Minute, nil, nil),
			catalog.NewPrescriptionService(client, nil),
			nil,
		),
	})
	ts.Server = httptest.NewServer(router)
	t.Cleanup(func() {
		ts.Server.Close()
		ts.Hub.Stop()
	})
}

func (ts *TestServer) NewClient(token string) *testutil.HTTPTestClient {
	return testutil.NewHTTPTestClient(ts.Server.URL, token)
}

func (ts *TestServer) AssignerToken(t *testing.T) string {
	return testutil.GenerateAssignerToken(t, ts.PrivateKey)
}

func (ts *TestServer) ClinicToken(t *testing.T) string {
	return testutil.GenerateClinicToken(t, ts.PrivateKey, "clinic-1")
}
