package api

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tasklens/domain"
)

var (
	// ErrEmailTaken is returned when registering an existing email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrBadCredentials is returned for an unknown email or wrong password.
	ErrBadCredentials = errors.New("invalid email or password")
)

type userRecord struct {
	id           string
	name         string
	email        string
	passwordHash []byte
}

// Store is the in-memory backing state of the development service. Every
// collection is scoped to a user id; the service never exposes cross-user
// data.
type Store struct {
	mu            sync.RWMutex
	usersByEmail  map[string]*userRecord
	usersByID     map[string]*userRecord
	tasks         map[string][]domain.Task
	notifications map[string][]domain.Notification
	idempotency   map[string]domain.Task

	now func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		usersByEmail:  make(map[string]*userRecord),
		usersByID:     make(map[string]*userRecord),
		tasks:         make(map[string][]domain.Task),
		notifications: make(map[string][]domain.Notification),
		idempotency:   make(map[string]domain.Task),
		now:           time.Now,
	}
}

// CreateUser registers an account and greets it with a welcome notification.
func (s *Store) CreateUser(name, email, password string) (id string, err error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByEmail[email]; exists {
		return "", ErrEmailTaken
	}
	rec := &userRecord{id: uuid.NewString(), name: name, email: email, passwordHash: hash}
	s.usersByEmail[email] = rec
	s.usersByID[rec.id] = rec
	s.notifications[rec.id] = append(s.notifications[rec.id], domain.Notification{
		ID:        uuid.NewString(),
		Title:     "Welcome",
		Message:   "Your account is ready.",
		CreatedAt: s.now(),
	})
	return rec.id, nil
}

// Authenticate checks the credentials and returns the user id.
func (s *Store) Authenticate(email, password string) (string, error) {
	s.mu.RLock()
	rec, ok := s.usersByEmail[email]
	s.mu.RUnlock()
	if !ok {
		return "", ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)) != nil {
		return "", ErrBadCredentials
	}
	return rec.id, nil
}

// User returns the identity fields for the given user id.
func (s *Store) User(id string) (name, email string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.usersByID[id]
	if !ok {
		return "", "", false
	}
	return rec.name, rec.email, true
}

// Tasks returns the user's tasks, newest first.
func (s *Store) Tasks(userID string) []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, len(s.tasks[userID]))
	copy(out, s.tasks[userID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// CreateTask stores a new task. When idemKey matches an earlier create, the
// earlier task is returned instead of a duplicate.
func (s *Store) CreateTask(userID string, task domain.Task, idemKey string) domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idemKey != "" {
		if prior, ok := s.idempotency[userID+":"+idemKey]; ok {
			return prior
		}
	}
	task.ID = uuid.NewString()
	task.CreatedAt = s.now()
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	if task.Status == "" {
		task.Status = domain.StatusPending
	}
	s.tasks[userID] = append(s.tasks[userID], task)
	if idemKey != "" {
		s.idempotency[userID+":"+idemKey] = task
	}
	return task
}

// UpdateTask applies non-nil patch fields. ok is false for an unknown id.
func (s *Store) UpdateTask(userID, id string, patch func(*domain.Task)) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.tasks[userID]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		wasCompleted := list[i].Status == domain.StatusCompleted
		patch(&list[i])
		if !wasCompleted && list[i].Status == domain.StatusCompleted {
			s.notifications[userID] = append(s.notifications[userID], domain.Notification{
				ID:        uuid.NewString(),
				Title:     "Task completed",
				Message:   "\"" + list[i].Title + "\" is done.",
				CreatedAt: s.now(),
			})
		}
		return list[i], true
	}
	return domain.Task{}, false
}

// DeleteTask removes a task. ok is false for an unknown id.
func (s *Store) DeleteTask(userID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.tasks[userID]
	for i := range list {
		if list[i].ID == id {
			s.tasks[userID] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Notifications returns the user's notifications, newest first.
func (s *Store) Notifications(userID string) []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Notification, len(s.notifications[userID]))
	copy(out, s.notifications[userID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// MarkAllRead flips every notification to read. Safe to repeat.
func (s *Store) MarkAllRead(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.notifications[userID]
	for i := range list {
		list[i].Read = true
	}
}

// MarkRead flips one notification to read. ok is false for an unknown id.
func (s *Store) MarkRead(userID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.notifications[userID]
	for i := range list {
		if list[i].ID == id {
			list[i].Read = true
			return true
		}
	}
	return false
}
