package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/goccy/go-json"
)

type fakeLister struct {
	mu     sync.Mutex
	calls  []listCall
	ListFn func(path string, q apiclient.ListQuery) (*apiclient.ListResult, error)
}

type listCall struct {
	Path  string
	Query apiclient.ListQuery
}

func (f *fakeLister) List(ctx context.Context, path string, q apiclient.ListQuery) (*apiclient.ListResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, listCall{Path: path, Query: q})
	f.mu.Unlock()
	if f.ListFn != nil {
		return f.ListFn(path, q)
	}
	return &apiclient.ListResult{Items: items(2), Total: 2}, nil
}

func (f *fakeLister) Calls() []listCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]listCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type refreshMetric struct {
	Worklist string
	OK       bool
}

type recordingMetrics struct {
	mu      sync.Mutex
	records []refreshMetric
}

func (m *recordingMetrics) RecordWorklistRefresh(ctx context.Context, worklist string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, refreshMetric{worklist, ok})
}

func items(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(`{"_id":"row"}`)
	}
	return out
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
