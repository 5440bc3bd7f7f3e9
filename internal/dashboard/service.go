package dashboard

import (
	"context"
	"strings"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/pagination"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Lister fetches one page of an upstream worklist.
type Lister interface {
	List(ctx context.Context, path string, q apiclient.ListQuery) (*apiclient.ListResult, error)
}

var _ Lister = (*apiclient.Client)(nil)

// MetricsRecorder counts worklist fetches.
type MetricsRecorder interface {
	RecordWorklistRefresh(ctx context.Context, worklist string, ok bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordWorklistRefresh(ctx context.Context, worklist string, ok bool) {}

// Page is one fetched page of a worklist.
type Page struct {
	Worklist   string            `json:"worklist"`
	Search     string            `json:"search,omitempty"`
	Items      []json.RawMessage `json:"items"`
	Pagination pagination.Meta   `json:"pagination"`
	FetchedAt  time.Time         `json:"fetchedAt"`
}

type Service struct {
	lister  Lister
	metrics MetricsRecorder
	clock   func() time.Time
	log     *zap.Logger
}

func NewService(lister Lister, metrics MetricsRecorder, log *zap.Logger) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{lister: lister, metrics: metrics, clock: time.Now, log: log}
}

// Fetch loads one page of the named worklist live from upstream.
func (s *Service) Fetch(ctx context.Context, worklist, search string, params pagination.Params) (*Page, error) {
	wl, err := Lookup(worklist)
	if err != nil {
		return nil, err
	}
	params.Validate()
	search = strings.TrimSpace(search)

	res, err := s.lister.List(ctx, wl.Path, apiclient.ListQuery{
		Search: search,
		Page:   params.Page,
		Limit:  params.Limit,
	})
	s.metrics.RecordWorklistRefresh(ctx, wl.Name, err == nil)
	if err != nil {
		s.log.Warn("worklist fetch failed",
			zap.String("worklist", wl.Name),
			zap.Int("page", params.Page),
			zap.Error(err),
		)
		return nil, err
	}

	// Some list endpoints omit the total; never report fewer than were seen.
	total := res.Total
	if seen := params.CalculateOffset() + len(res.Items); total < seen {
		total = seen
	}
	return &Page{
		Worklist:   wl.Name,
		Search:     search,
		Items:      res.Items,
		Pagination: params.CalculateMeta(total),
		FetchedAt:  s.clock(),
	}, nil
}
