package dashboard

import (
	"context"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/pagination"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// HubConfig wires a Hub. Token is the service credential pollers use
// upstream since they run outside any user request.
type HubConfig struct {
	Service     *Service
	Token       string
	Interval    time.Duration
	PageSize    int
	AutoRefresh bool
	Logger      *zap.Logger
}

// Hub owns one Poller per worklist and pushes an event to connected clients
// whenever a snapshot changes.
type Hub struct {
	pollers     map[string]*Poller
	broadcaster *Broadcaster
	log         *zap.Logger
}

// UpdateEvent is the payload pushed on the event stream.
type UpdateEvent struct {
	Type      string    `json:"type"`
	Worklist  string    `json:"worklist"`
	Total     int       `json:"total"`
	FetchedAt time.Time `json:"fetchedAt"`
}

func NewHub(cfg HubConfig) *Hub {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		pollers:     map[string]*Poller{},
		broadcaster: NewBroadcaster(),
		log:         log,
	}
	params := pagination.Params{Page: pagination.DefaultPage, Limit: cfg.PageSize}
	params.Validate()

	for _, wl := range All() {
		name := wl.Name
		fetch := func(ctx context.Context) (*Page, error) {
			if cfg.Token != "" {
				ctx = apiclient.ContextWithToken(ctx, cfg.Token)
			}
			return cfg.Service.Fetch(ctx, name, "", params)
		}
		p := NewPoller(name, fetch, cfg.Interval, cfg.AutoRefresh, log)
		p.OnUpdate(h.publish)
		h.pollers[name] = p
	}
	return h
}

func (h *Hub) publish(name string, page *Page) {
	msg, err := json.Marshal(UpdateEvent{
		Type:      "worklist.updated",
		Worklist:  name,
		Total:     page.Pagination.TotalRecords,
		FetchedAt: page.FetchedAt,
	})
	if err != nil {
		h.log.Error("failed to encode worklist event", zap.Error(err))
		return
	}
	h.broadcaster.Broadcast(string(msg))
}

func (h *Hub) Start(ctx context.Context) {
	for _, p := range h.pollers {
		p.Start(ctx)
	}
	h.log.Info("dashboard pollers started", zap.Int("worklists", len(h.pollers)))
}

func (h *Hub) Stop() {
	for _, p := range h.pollers {
		p.Stop()
	}
}

// Poller returns the poller for a worklist.
func (h *Hub) Poller(name string) (*Poller, error) {
	if _, err := Lookup(name); err != nil {
		return nil, err
	}
	return h.pollers[name], nil
}

// RequestRefresh asks the named worklist to refetch now. Unknown names are
// ignored.
func (h *Hub) RequestRefresh(worklist string) {
	if p, ok := h.pollers[worklist]; ok {
		p.RequestRefresh()
	}
}

func (h *Hub) Broadcaster() *Broadcaster {
	return h.broadcaster
}
