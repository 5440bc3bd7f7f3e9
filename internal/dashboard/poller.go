package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrNoSnapshot = errors.New("worklist has not been fetched yet")

// FetchFunc loads the page a poller keeps fresh.
type FetchFunc func(ctx context.Context) (*Page, error)

// Poller refreshes one worklist page on a fixed interval while enabled and
// keeps the latest result as a snapshot. Toggling takes effect on the next
// tick. Once stopped, a fetch that was already in flight is discarded.
type Poller struct {
	name     string
	fetch    FetchFunc
	interval time.Duration
	log      *zap.Logger
	onUpdate func(name string, page *Page)

	enabled atomic.Bool
	refresh chan struct{}

	mu       sync.RWMutex
	stopped  bool
	snapshot *Page
	lastErr  error
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewPoller(name string, fetch FetchFunc, interval time.Duration, enabled bool, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Poller{
		name:     name,
		fetch:    fetch,
		interval: interval,
		log:      log.With(zap.String("worklist", name)),
		refresh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	p.enabled.Store(enabled)
	return p
}

// OnUpdate registers fn to run after every stored snapshot. Call before Start.
func (p *Poller) OnUpdate(fn func(name string, page *Page)) {
	p.onUpdate = fn
}

// Start launches the polling goroutine. An enabled poller fetches at once.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.enabled.Load() {
		p.poll(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.enabled.Load() {
				p.poll(ctx)
			}
		case <-p.refresh:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	page, err := p.fetch(ctx)

	p.mu.Lock()
	if p.stopped || ctx.Err() != nil {
		p.mu.Unlock()
		p.log.Debug("discarding worklist result after stop")
		return
	}
	if err != nil {
		p.lastErr = err
		p.mu.Unlock()
		p.log.Warn("worklist poll failed", zap.Error(err))
		return
	}
	p.snapshot = page
	p.lastErr = nil
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(p.name, page)
	}
}

// Stop cancels polling without waiting for an in-flight fetch; its result
// will not be stored.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the polling goroutine has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// RequestRefresh asks for a fetch now regardless of the enabled flag.
// Requests made while one is pending are coalesced.
func (p *Poller) RequestRefresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

func (p *Poller) SetEnabled(enabled bool) {
	p.enabled.Store(enabled)
	p.log.Info("worklist auto-refresh toggled", zap.Bool("enabled", enabled))
}

func (p *Poller) Enabled() bool {
	return p.enabled.Load()
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Snapshot returns the last stored page and the error of the latest poll,
// if that poll failed. ErrNoSnapshot is returned before the first success.
func (p *Poller) Snapshot() (*Page, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snapshot == nil {
		if p.lastErr != nil {
			return nil, p.lastErr
		}
		return nil, ErrNoSnapshot
	}
	return p.snapshot, p.lastErr
}
