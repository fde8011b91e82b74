package cache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"tasklens/domain"
)

type stubService struct {
	mu         sync.Mutex
	tasks      []domain.Task
	notifs     []domain.Notification
	tasksErr   error
	notifsErr  error
	taskCalls  int
	notifCalls int

	block chan struct{} // when set, ListTasks waits on it
}

func (s *stubService) ListTasks(ctx context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	s.taskCalls++
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasksErr != nil {
		return nil, s.tasksErr
	}
	return append([]domain.Task(nil), s.tasks...), nil
}

func (s *stubService) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifCalls++
	if s.notifsErr != nil {
		return nil, s.notifsErr
	}
	return append([]domain.Notification(nil), s.notifs...), nil
}

func (s *stubService) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskCalls, s.notifCalls
}

func TestTasksMissThenHit(t *testing.T) {
	svc := &stubService{tasks: []domain.Task{{ID: "t1", Title: "write code"}}}
	q := New(svc, NewMemoryStore(), Options{})
	ctx := context.Background()

	got, err := q.Tasks(ctx)
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if !reflect.DeepEqual(got, svc.tasks) {
		t.Fatalf("unexpected tasks: %#v", got)
	}

	if _, err := q.Tasks(ctx); err != nil {
		t.Fatalf("cached tasks: %v", err)
	}
	if calls, _ := svc.calls(); calls != 1 {
		t.Fatalf("expected 1 service call, got %d", calls)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	svc := &stubService{tasks: []domain.Task{{ID: "t1"}}}
	q := New(svc, NewMemoryStore(), Options{})
	ctx := context.Background()

	if _, err := q.Tasks(ctx); err != nil {
		t.Fatalf("tasks: %v", err)
	}
	q.Invalidate(ctx, KeyTasks)
	if _, err := q.Tasks(ctx); err != nil {
		t.Fatalf("tasks after invalidate: %v", err)
	}
	if calls, _ := svc.calls(); calls != 2 {
		t.Fatalf("expected 2 service calls, got %d", calls)
	}
}

func TestConcurrentFetchesCoalesce(t *testing.T) {
	block := make(chan struct{})
	svc := &stubService{tasks: []domain.Task{{ID: "t1"}}, block: block}
	q := New(svc, NewMemoryStore(), Options{})
	ctx := context.Background()

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = q.Tasks(ctx)
		}(i)
	}

	// Give every goroutine time to join the in-flight call before the
	// loader completes.
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if calls, _ := svc.calls(); calls != 1 {
		t.Fatalf("expected coalesced single service call, got %d", calls)
	}
}

func TestFetchErrorPropagatesAndIsNotCached(t *testing.T) {
	boom := errors.New("boom")
	svc := &stubService{tasksErr: boom}
	q := New(svc, NewMemoryStore(), Options{})
	ctx := context.Background()

	if _, err := q.Tasks(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}

	svc.mu.Lock()
	svc.tasksErr = nil
	svc.tasks = []domain.Task{{ID: "t1"}}
	svc.mu.Unlock()

	got, err := q.Tasks(ctx)
	if err != nil {
		t.Fatalf("tasks after failure: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected recovery fetch to hit the service, got %#v", got)
	}
	if calls, _ := svc.calls(); calls != 2 {
		t.Fatalf("expected 2 service calls, got %d", calls)
	}
}

func TestNotificationsExpireAfterTTL(t *testing.T) {
	svc := &stubService{notifs: []domain.Notification{{ID: "n1"}}}
	store := NewMemoryStore()
	current := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	q := New(svc, store, Options{NotificationsTTL: 30 * time.Second})
	ctx := context.Background()

	if _, err := q.Notifications(ctx); err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if _, err := q.Notifications(ctx); err != nil {
		t.Fatalf("cached notifications: %v", err)
	}
	if _, calls := svc.calls(); calls != 1 {
		t.Fatalf("expected 1 service call before expiry, got %d", calls)
	}

	current = current.Add(31 * time.Second)
	if _, err := q.Notifications(ctx); err != nil {
		t.Fatalf("notifications after expiry: %v", err)
	}
	if _, calls := svc.calls(); calls != 2 {
		t.Fatalf("expected refetch after expiry, got %d calls", calls)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	svc := &stubService{
		tasks:  []domain.Task{{ID: "t1"}},
		notifs: []domain.Notification{{ID: "n1"}},
	}
	q := New(svc, NewMemoryStore(), Options{})
	ctx := context.Background()

	if _, err := q.Tasks(ctx); err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if _, err := q.Notifications(ctx); err != nil {
		t.Fatalf("notifications: %v", err)
	}

	q.Invalidate(ctx, KeyTasks)
	if _, err := q.Notifications(ctx); err != nil {
		t.Fatalf("notifications after task invalidate: %v", err)
	}
	if _, calls := svc.calls(); calls != 1 {
		t.Fatalf("task invalidation must not evict notifications, got %d calls", calls)
	}
}
