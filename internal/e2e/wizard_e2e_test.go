//go:build integration

package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/testutil"
	"github.com/goccy/go-json"
)

type sessionResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ID     string            `json:"id"`
		Step   string            `json:"step"`
		Errors map[string]string `json:"errors"`
		Record json.RawMessage   `json:"record"`
	} `json:"data"`
}

func field(section, name, value string) map[string]string {
	return map[string]string{"section": section, "field": name, "value": value}
}

// TestE2E_Onboarding_FullFlow drives a clinic onboarding from open to submit
// and checks the upstream write, the published event and the dashboard push.
func TestE2E_Onboarding_FullFlow(t *testing.T) {
	ts := SetupE2ETest(t)
	ts.API.Reply(http.MethodPost, apiclient.PathClinics, map[string]string{"_id": "clinic-42"})
	ts.API.Reply(http.MethodGet, apiclient.PathClinics, map[string]interface{}{"items": []interface{}{}, "total": 1})
	events := ts.Hub.Broadcaster().Register()

	client := ts.NewClient(ts.AssignerToken(t))

	var opened sessionResponse
	resp := client.POST(t, "/wizards/onboarding", map[string]string{"kind": "clinic"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, testutil.ReadBody(t, resp))
	}
	testutil.DecodeJSON(t, resp, &opened)
	id := opened.Data.ID

	steps := [][]map[string]string{
		{field("details", "name", "Sunrise Clinic"), field("details", "registrationNumber", "MH-2024-118"), field("details", "ownerName", "Dr. Kulkarni")},
		{field("contact", "phone", "9988776655"), field("contact", "email", "desk@sunrise.in")},
		{field("address", "street", "4 FC Road"), field("address", "city", "Pune"), field("address", "state", "Maharashtra"), field("address", "pincode", "411004")},
		{field("credentials", "password", "s3cret!"), field("credentials", "confirmPassword", "s3cret!")},
	}
	for i, updates := range steps {
		for _, u := range updates {
			testutil.AssertStatusCode(t, client.PATCH(t, "/wizards/"+id+"/fields", u), http.StatusOK)
		}
		if i < len(steps)-1 {
			testutil.AssertStatusCode(t, client.POST(t, "/wizards/"+id+"/advance", nil), http.StatusOK)
		}
	}

	resp = client.POST(t, "/wizards/"+id+"/submit", nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	if n := ts.API.Count(http.MethodPost, apiclient.PathClinics); n != 1 {
		t.Errorf("Expected 1 clinic create, got %d", n)
	}
	ts.MockPublisher.AssertEventCount(t, messaging.EventFacilityOnboarded, 1)
	var ev messaging.FacilityOnboardedEvent
	ts.MockPublisher.DecodeLastEvent(t, messaging.EventFacilityOnboarded, &ev)
	if ev.Data.FacilityID != "clinic-42" || ev.Data.FacilityKind != "clinic" {
		t.Errorf("Unexpected event data: %+v", ev.Data)
	}

	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a dashboard update after onboarding")
	}
	for _, r := range ts.API.Requests() {
		if r.Method == http.MethodGet && r.Path == apiclient.PathClinics && r.Authorization != "Bearer "+serviceToken {
			t.Errorf("Expected dashboard refresh to use the service token, got %q", r.Authorization)
		}
	}
}

// TestE2E_DraftSurvivesRestart checks a half-filled wizard is restored from
// Postgres by a new process.
func TestE2E_DraftSurvivesRestart(t *testing.T) {
	ts := SetupE2ETest(t)
	client := ts.NewClient(ts.AssignerToken(t))

	var opened sessionResponse
	resp := client.POST(t, "/wizards/onboarding", map[string]string{"kind": "lab"})
	testutil.DecodeJSON(t, resp, &opened)
	id := opened.Data.ID

	for _, u := range []map[string]string{
		field("details", "name", "Lakeside Labs"),
		field("details", "registrationNumber", "KA-77"),
		field("details", "ownerName", "A. Rao"),
	} {
		testutil.AssertStatusCode(t, client.PATCH(t, "/wizards/"+id+"/fields", u), http.StatusOK)
	}
	testutil.AssertStatusCode(t, client.POST(t, "/wizards/"+id+"/advance", nil), http.StatusOK)

	var count int
	if err := ts.DB.QueryRow("SELECT COUNT(*) FROM intake_drafts WHERE session_id = $1", id).Scan(&count); err != nil {
		t.Fatalf("Failed to query drafts: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected draft row, got %d", count)
	}

	ts.Restart(t)
	client = ts.NewClient(ts.AssignerToken(t))

	var restored sessionResponse
	resp = client.GET(t, "/wizards/"+id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected restored session, got %d: %s", resp.StatusCode, testutil.ReadBody(t, resp))
	}
	testutil.DecodeJSON(t, resp, &restored)
	if restored.Data.Step != "contact" {
		t.Errorf("Expected contact step after restart, got %s", restored.Data.Step)
	}

	// Sessions stay private to the user who opened them.
	resp = ts.NewClient(ts.ClinicToken(t)).GET(t, "/wizards/"+id)
	testutil.AssertStatusCode(t, resp, http.StatusNotFound)
}
