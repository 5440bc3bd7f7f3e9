package dashboard

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/pagination"
)

func TestService_Fetch(t *testing.T) {
	lister := &fakeLister{ListFn: func(path string, q apiclient.ListQuery) (*apiclient.ListResult, error) {
		return &apiclient.ListResult{Items: items(5), Total: 45}, nil
	}}
	metrics := &recordingMetrics{}
	svc := NewService(lister, metrics, nil)
	fixed := time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	page, err := svc.Fetch(context.Background(), Patients, "  amira ", pagination.Params{Page: 2, Limit: 20})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	calls := lister.Calls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 upstream call, got %d", len(calls))
	}
	if calls[0].Path != apiclient.PathPatients {
		t.Errorf("Expected path %s, got %s", apiclient.PathPatients, calls[0].Path)
	}
	if calls[0].Query != (apiclient.ListQuery{Search: "amira", Page: 2, Limit: 20}) {
		t.Errorf("Unexpected query: %+v", calls[0].Query)
	}
	if page.Search != "amira" || len(page.Items) != 5 || !page.FetchedAt.Equal(fixed) {
		t.Errorf("Unexpected page: %+v", page)
	}
	want := pagination.Meta{CurrentPage: 2, PerPage: 20, TotalPages: 3, TotalRecords: 45, HasNext: true, HasPrevious: true}
	if page.Pagination != want {
		t.Errorf("Expected meta %+v, got %+v", want, page.Pagination)
	}
	if len(metrics.records) != 1 || metrics.records[0] != (refreshMetric{Patients, true}) {
		t.Errorf("Unexpected metrics: %+v", metrics.records)
	}
}

func TestService_Fetch_ClampsParams(t *testing.T) {
	lister := &fakeLister{}
	svc := NewService(lister, nil, nil)

	if _, err := svc.Fetch(context.Background(), Clinics, "", pagination.Params{Page: 0, Limit: 500}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	q := lister.Calls()[0].Query
	if q.Page != pagination.DefaultPage || q.Limit != pagination.MaxLimit {
		t.Errorf("Expected page %d limit %d, got %+v", pagination.DefaultPage, pagination.MaxLimit, q)
	}
}

func TestService_Fetch_MissingTotal(t *testing.T) {
	lister := &fakeLister{ListFn: func(path string, q apiclient.ListQuery) (*apiclient.ListResult, error) {
		return &apiclient.ListResult{Items: items(3)}, nil
	}}
	svc := NewService(lister, nil, nil)

	page, err := svc.Fetch(context.Background(), Appointments, "", pagination.Params{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if page.Pagination.TotalRecords != 13 {
		t.Errorf("Expected total 13, got %d", page.Pagination.TotalRecords)
	}
	if page.Pagination.HasNext {
		t.Error("Expected no next page")
	}
}

func TestService_Fetch_UnknownWorklist(t *testing.T) {
	lister := &fakeLister{}
	svc := NewService(lister, nil, nil)

	_, err := svc.Fetch(context.Background(), "labs", "", pagination.Params{})
	if !errors.Is(err, ErrUnknownWorklist) {
		t.Fatalf("Expected ErrUnknownWorklist, got %v", err)
	}
	if len(lister.Calls()) != 0 {
		t.Error("Expected no upstream call")
	}
}

func TestService_Fetch_UpstreamError(t *testing.T) {
	upstream := &apiclient.Error{StatusCode: http.StatusInternalServerError, Method: http.MethodGet, Path: apiclient.PathClinics}
	lister := &fakeLister{ListFn: func(path string, q apiclient.ListQuery) (*apiclient.ListResult, error) {
		return nil, upstream
	}}
	metrics := &recordingMetrics{}
	svc := NewService(lister, metrics, nil)

	_, err := svc.Fetch(context.Background(), Clinics, "", pagination.Params{})
	if !errors.Is(err, upstream) {
		t.Fatalf("Expected upstream error, got %v", err)
	}
	if len(metrics.records) != 1 || metrics.records[0].OK {
		t.Errorf("Expected one failed refresh metric, got %+v", metrics.records)
	}
}

func TestLookup(t *testing.T) {
	for _, wl := range All() {
		got, err := Lookup(wl.Name)
		if err != nil || got != wl {
			t.Errorf("Lookup(%q) = %+v, %v", wl.Name, got, err)
		}
	}
	if _, err := Lookup("PATIENTS"); !errors.Is(err, ErrUnknownWorklist) {
		t.Errorf("Expected names to be case-sensitive, got %v", err)
	}
}
