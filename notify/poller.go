// Package notify keeps an eventually-consistent local view of the user's
// notifications: a fixed-interval poll plus explicit wake-ups, with the
// service as the authority on read state.
package notify

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"tasklens/cache"
	"tasklens/domain"
)

// DefaultInterval is the polling cadence.
const DefaultInterval = 45 * time.Second

// refreshTimeout bounds a single background refresh.
const refreshTimeout = 10 * time.Second

// Service is the remote notification surface.
type Service interface {
	MarkAllNotificationsRead(ctx context.Context) error
	MarkNotificationRead(ctx context.Context, id string) error
}

// Poller maintains the local notification view. Start launches the loop and
// the owner must call Stop when the consuming view goes away; a stopped
// poller discards any late-arriving refresh instead of applying it to
// torn-down state.
type Poller struct {
	svc      Service
	queries  *cache.Queries
	log      *log.Logger
	interval time.Duration

	mu      sync.RWMutex
	view    []domain.Notification
	stopped bool

	startOnce sync.Once
	stopOnce  sync.Once
	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
}

// New creates a Poller. An interval <= 0 selects DefaultInterval.
func New(svc Service, queries *cache.Queries, logger *log.Logger, interval time.Duration) *Poller {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		svc:      svc,
		queries:  queries,
		log:      logger,
		interval: interval,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the polling loop. It refreshes once immediately, then on
// every tick and wake-up. Calling Start more than once is a no-op.
func (p *Poller) Start() {
	p.startOnce.Do(func() {
		go p.loop()
	})
}

// Stop halts the loop and waits for it to exit. No timers are left behind.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.quit)
	})
	p.startOnce.Do(func() { close(p.done) })
	<-p.done
}

// Wake forces a refresh outside the regular cadence, e.g. when the
// application regains focus.
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) loop() {
	defer close(p.done)

	p.backgroundRefresh()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			p.backgroundRefresh()
		case <-p.wake:
			p.backgroundRefresh()
		}
	}
}

// backgroundRefresh never crashes the loop: a failure is logged and the
// previous view stays in place.
func (p *Poller) backgroundRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := p.Refresh(ctx); err != nil {
		p.log.WithError(err).Warn("notification refresh failed; keeping previous view")
	}
}

// Refresh fetches the notification collection and replaces the local view
// entirely. There is no merging: the service is authoritative.
func (p *Poller) Refresh(ctx context.Context) error {
	ns, err := p.queries.Notifications(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.view = ns
	return nil
}

// Snapshot returns a copy of the current local view.
func (p *Poller) Snapshot() []domain.Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Notification, len(p.view))
	copy(out, p.view)
	return out
}

// UnreadCount is derived from the current view on every call.
func (p *Poller) UnreadCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return domain.UnreadCount(p.view)
}

// MarkAllRead runs the bulk mutation, then drops the cached collection and
// refreshes. On failure the local view is untouched and the error surfaces.
func (p *Poller) MarkAllRead(ctx context.Context) error {
	if err := p.svc.MarkAllNotificationsRead(ctx); err != nil {
		return err
	}
	return p.reload(ctx)
}

// MarkOneRead marks a single notification read, with the same
// success/failure handling as MarkAllRead.
func (p *Poller) MarkOneRead(ctx context.Context, id string) error {
	if err := p.svc.MarkNotificationRead(ctx, id); err != nil {
		return err
	}
	return p.reload(ctx)
}

func (p *Poller) reload(ctx context.Context) error {
	p.queries.Invalidate(ctx, cache.KeyNotifications)
	return p.Refresh(ctx)
}
