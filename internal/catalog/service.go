package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/intake"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var ErrUnknownCatalog = errors.New("unknown catalog")

// Kind names a searchable catalog.
type Kind string

const (
	Medicines Kind = "medicines"
	Tests     Kind = "tests"
)

// MinQueryLength is the shortest query sent upstream; shorter ones return
// no results.
const MinQueryLength = 2

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Medicines, Tests:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCatalog, s)
}

func (k Kind) path() string {
	if k == Tests {
		return apiclient.PathTestsSearch
	}
	return apiclient.PathMedicinesSearch
}

// Upstream is the subset of the API client the catalog needs.
type Upstream interface {
	Search(ctx context.Context, path, query string) ([]json.RawMessage, error)
	AddCatalogEntry(ctx context.Context, path string, entry interface{}) (json.RawMessage, error)
	CreatePrescription(ctx context.Context, payload interface{}) (*apiclient.Ref, error)
	UpdatePrescription(ctx context.Context, id string, payload interface{}) (*apiclient.Ref, error)
}

var _ Upstream = (*apiclient.Client)(nil)

type MetricsRecorder interface {
	RecordCatalogLookup(ctx context.Context, catalog, source string)
}

type nopMetrics struct{}

func (nopMetrics) RecordCatalogLookup(ctx context.Context, catalog, source string) {}

// Lookup sources.
const (
	SourceCache    = "cache"
	SourceUpstream = "upstream"
)

type SearchResult struct {
	Catalog Kind              `json:"catalog"`
	Query   string            `json:"query"`
	Results []json.RawMessage `json:"results"`
	Source  string            `json:"source"`
}

// NewEntryRequest is a catalog entry typed by a doctor when search found
// nothing suitable.
type NewEntryRequest struct {
	Name        string `json:"name" validate:"required"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// Service answers typeahead searches through a version-keyed cache. Adding
// an entry bumps the catalog version so cached answers are never served
// stale after a write.
type Service struct {
	upstream Upstream
	cache    Cache
	ttl      time.Duration
	metrics  MetricsRecorder
	log      *zap.Logger
}

func NewService(upstream Upstream, cache Cache, ttl time.Duration, metrics MetricsRecorder, log *zap.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{upstream: upstream, cache: cache, ttl: ttl, metrics: metrics, log: log}
}

func versionKey(kind Kind) string {
	return "catalog:" + string(kind) + ":version"
}

func (s *Service) searchKey(ctx context.Context, kind Kind, query string) (string, error) {
	raw, ok, err := s.cache.Get(ctx, versionKey(kind))
	if err != nil {
		return "", err
	}
	version := "0"
	if ok {
		version = string(raw)
	}
	return "catalog:" + string(kind) + ":v" + version + ":" + strings.ToLower(query), nil
}

func (s *Service) Search(ctx context.Context, catalog, query string) (*SearchResult, error) {
	kind, err := ParseKind(catalog)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	res := &SearchResult{Catalog: kind, Query: query, Results: []json.RawMessage{}}
	if len([]rune(query)) < MinQueryLength {
		return res, nil
	}

	key, err := s.searchKey(ctx, kind, query)
	if err != nil {
		s.log.Warn("catalog cache unavailable", zap.String("catalog", string(kind)), zap.Error(err))
	} else if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		if err := json.Unmarshal(cached, &res.Results); err == nil {
			res.Source = SourceCache
			s.metrics.RecordCatalogLookup(ctx, string(kind), SourceCache)
			return res, nil
		}
		s.log.Warn("discarding undecodable catalog cache entry", zap.String("key", key))
	}

	results, err := s.upstream.Search(ctx, kind.path(), query)
	if err != nil {
		s.log.Error("catalog search failed", zap.String("catalog", string(kind)), zap.Error(err))
		return nil, err
	}
	s.metrics.RecordCatalogLookup(ctx, string(kind), SourceUpstream)
	res.Results = results
	res.Source = SourceUpstream

	if key != "" {
		if data, err := json.Marshal(results); err == nil {
			if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
				s.log.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return res, nil
}

func (s *Service) AddEntry(ctx context.Context, catalog string, req NewEntryRequest) (json.RawMessage, error) {
	kind, err := ParseKind(catalog)
	if err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if fields := validateStruct(req); len(fields) > 0 {
		return nil, &intake.ValidationError{Fields: fields}
	}

	entry, err := s.upstream.AddCatalogEntry(ctx, kind.path(), req)
	if err != nil {
		s.log.Error("failed to add catalog entry", zap.String("catalog", string(kind)), zap.Error(err))
		return nil, err
	}
	if v, err := s.cache.Incr(ctx, versionKey(kind)); err != nil {
		s.log.Warn("failed to invalidate catalog cache", zap.String("catalog", string(kind)), zap.Error(err))
	} else {
		s.log.Info("catalog entry added", zap.String("catalog", string(kind)), zap.String("version", strconv.FormatInt(v, 10)))
	}
	return entry, nil
}
