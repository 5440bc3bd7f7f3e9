package catalog

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/goccy/go-json"
)

var errCacheDown = errors.New("cache down")

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	GetErr  error
	SetErr  error
	IncrErr error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return nil, false, c.GetErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetErr != nil {
		return c.SetErr
	}
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.IncrErr != nil {
		return 0, c.IncrErr
	}
	n, _ := strconv.ParseInt(string(c.data[key]), 10, 64)
	n++
	c.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

type searchCall struct {
	Path  string
	Query string
}

type fakeUpstream struct {
	searches []searchCall
	entries  []interface{}
	created  []interface{}
	updated  map[string]interface{}

	SearchFunc func(path, query string) ([]json.RawMessage, error)
	CreateErr  error
}

func (f *fakeUpstream) Search(ctx context.Context, path, query string) ([]json.RawMessage, error) {
	f.searches = append(f.searches, searchCall{path, query})
	if f.SearchFunc != nil {
		return f.SearchFunc(path, query)
	}
	return []json.RawMessage{json.RawMessage(`{"name":"Paracetamol"}`)}, nil
}

func (f *fakeUpstream) AddCatalogEntry(ctx context.Context, path string, entry interface{}) (json.RawMessage, error) {
	f.entries = append(f.entries, entry)
	return json.RawMessage(`{"_id":"entry-1"}`), nil
}

func (f *fakeUpstream) CreatePrescription(ctx context.Context, payload interface{}) (*apiclient.Ref, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.created = append(f.created, payload)
	return &apiclient.Ref{PrescriptionID: "rx-1"}, nil
}

func (f *fakeUpstream) UpdatePrescription(ctx context.Context, id string, payload interface{}) (*apiclient.Ref, error) {
	if f.updated == nil {
		f.updated = map[string]interface{}{}
	}
	f.updated[id] = payload
	return &apiclient.Ref{PrescriptionID: id}, nil
}

type lookupRecord struct {
	Catalog string
	Source  string
}

type recordingMetrics struct {
	lookups []lookupRecord
}

func (m *recordingMetrics) RecordCatalogLookup(ctx context.Context, catalog, source string) {
	m.lookups = append(m.lookups, lookupRecord{catalog, source})
}
