package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// UpstreamRequest is one request received by FakeAPI.
type UpstreamRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Body          []byte
	Authorization string
}

// UpstreamReply is what FakeAPI answers for a route. Data is wrapped in the
// {success, message, data} envelope; a status of 400 or above sets success
// to false.
type UpstreamReply struct {
	Status  int
	Message string
	Data    interface{}
}

// FakeAPI is an in-process stand-in for the clinic REST API. Routes are keyed
// by "METHOD /path" without the query string; unknown routes answer 404.
type FakeAPI struct {
	Server *httptest.Server

	mu       sync.Mutex
	routes   map[string]func(r *http.Request) UpstreamReply
	requests []UpstreamRequest
}

// NewFakeAPI starts the server and closes it when the test ends.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{routes: map[string]func(*http.Request) UpstreamReply{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeAPI) URL() string { return f.Server.URL }

// Reply answers method path with a fixed 200 envelope around data.
func (f *FakeAPI) Reply(method, path string, data interface{}) {
	f.Handle(method, path, func(*http.Request) UpstreamReply {
		return UpstreamReply{Status: http.StatusOK, Data: data}
	})
}

// Fail answers method path with status and message.
func (f *FakeAPI) Fail(method, path string, status int, message string) {
	f.Handle(method, path, func(*http.Request) UpstreamReply {
		return UpstreamReply{Status: status, Message: message}
	})
}

func (f *FakeAPI) Handle(method, path string, fn func(r *http.Request) UpstreamReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fn
}

func (f *FakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, UpstreamRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         r.URL.Query(),
		Body:          body,
		Authorization: r.Header.Get("Authorization"),
	})
	fn, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	reply := UpstreamReply{Status: http.StatusNotFound, Message: "route not found"}
	if ok {
		reply = fn(r)
	}
	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": reply.Status < http.StatusBadRequest,
		"message": reply.Message,
		"data":    reply.Data,
	})
}

// Requests returns every request received so far in arrival order.
func (f *FakeAPI) Requests() []UpstreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]UpstreamRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// Count returns how many requests hit method path.
func (f *FakeAPI) Count(method, path string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}
