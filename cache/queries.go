package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tasklens/domain"
)

// Collection keys.
const (
	KeyTasks         = "tasks"
	KeyNotifications = "notifications"
)

// DefaultNotificationsTTL bounds how long a notification snapshot is served
// without consulting the service.
const DefaultNotificationsTTL = 45 * time.Second

// Service is the remote read surface the cache populates itself from.
type Service interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	ListNotifications(ctx context.Context) ([]domain.Notification, error)
}

// Options tunes per-collection freshness. A zero TasksTTL keeps the task
// snapshot fresh until a mutation invalidates it, which matches the
// "on-demand plus after any write" refresh policy.
type Options struct {
	TasksTTL         time.Duration
	NotificationsTTL time.Duration
}

// Queries is the process-wide read path: one snapshot per collection, shared
// by every consumer. Concurrent fetches for the same key coalesce into a
// single service call; fetches for different keys are independent.
type Queries struct {
	svc       Service
	store     Store
	tasksTTL  time.Duration
	notifsTTL time.Duration

	mu       sync.Mutex
	inflight map[string]*call
}

type call struct {
	done chan struct{}
	data []byte
	err  error
}

// New creates a Queries instance over the given service and store.
func New(svc Service, store Store, opts Options) *Queries {
	if store == nil {
		store = NewMemoryStore()
	}
	if opts.NotificationsTTL <= 0 {
		opts.NotificationsTTL = DefaultNotificationsTTL
	}
	return &Queries{
		svc:       svc,
		store:     store,
		tasksTTL:  opts.TasksTTL,
		notifsTTL: opts.NotificationsTTL,
		inflight:  make(map[string]*call),
	}
}

// Tasks returns the task collection, fetching from the service on a cold or
// stale cache.
func (q *Queries) Tasks(ctx context.Context) ([]domain.Task, error) {
	data, err := q.fetch(ctx, KeyTasks, q.tasksTTL, func(ctx context.Context) ([]byte, error) {
		tasks, err := q.svc.ListTasks(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(tasks)
	})
	if err != nil {
		return nil, err
	}
	tasks := []domain.Task{}
	if err := json.Unmarshal(data, &tasks); err != nil {
		// A corrupt snapshot must never fail a read: drop it and go to the
		// service directly.
		q.store.Delete(ctx, KeyTasks)
		tasks, err = q.svc.ListTasks(ctx)
		if err != nil {
			return nil, err
		}
		if data, merr := json.Marshal(tasks); merr == nil {
			q.store.Set(ctx, KeyTasks, data, q.tasksTTL)
		}
	}
	return tasks, nil
}

// Notifications returns the notification collection, subject to the
// notification freshness window.
func (q *Queries) Notifications(ctx context.Context) ([]domain.Notification, error) {
	data, err := q.fetch(ctx, KeyNotifications, q.notifsTTL, func(ctx context.Context) ([]byte, error) {
		ns, err := q.svc.ListNotifications(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ns)
	})
	if err != nil {
		return nil, err
	}
	ns := []domain.Notification{}
	if err := json.Unmarshal(data, &ns); err != nil {
		q.store.Delete(ctx, KeyNotifications)
		ns, err = q.svc.ListNotifications(ctx)
		if err != nil {
			return nil, err
		}
		if data, merr := json.Marshal(ns); merr == nil {
			q.store.Set(ctx, KeyNotifications, data, q.notifsTTL)
		}
	}
	return ns, nil
}

// Invalidate marks the keyed snapshot stale so the next read consults the
// service. Callers invalidate KeyTasks after every acknowledged task write.
func (q *Queries) Invalidate(ctx context.Context, key string) {
	q.store.Delete(ctx, key)
}

// fetch serves the snapshot from the store when fresh and otherwise runs the
// loader exactly once, sharing the pending result with every concurrent
// caller for the same key.
func (q *Queries) fetch(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if data, ok := q.store.Get(ctx, key); ok {
		return data, nil
	}

	q.mu.Lock()
	if c, ok := q.inflight[key]; ok {
		q.mu.Unlock()
		select {
		case <-c.done:
			return c.data, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &call{done: make(chan struct{})}
	q.inflight[key] = c
	q.mu.Unlock()

	// A racing caller may have populated the store between our miss and the
	// inflight registration.
	if data, ok := q.store.Get(ctx, key); ok {
		c.data = data
	} else {
		c.data, c.err = load(ctx)
		if c.err == nil {
			q.store.Set(ctx, key, c.data, ttl)
		}
	}

	q.mu.Lock()
	delete(q.inflight, key)
	q.mu.Unlock()
	close(c.done)

	return c.data, c.err
}
