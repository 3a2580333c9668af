// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the tidepool-web application.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"tidepool-web/internal/audit"
	"tidepool-web/internal/domain"
	"tidepool-web/internal/ratelimit"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockNotFound       = errors.New("mock: not found")
)

// MockUserRepository implements domain.UserRepository for testing
type MockUserRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	CreateFunc     func(ctx context.Context, user *domain.User) error
	GetByIDFunc    func(ctx context.Context, id string) (*domain.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*domain.User, error)

	// In-memory storage for simple tests
	Users map[string]*domain.User
}

// NewMockUserRepository creates a new MockUserRepository with initialized maps
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[string]*domain.User),
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Users == nil {
		m.Users = make(map[string]*domain.User)
	}

	// Check for duplicates
	for _, u := range m.Users {
		if u.Email == user.Email {
			return domain.ErrEmailExists
		}
	}

	if user.ID == "" {
		user.ID = "user-" + user.Email
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// MockSessionRepository implements domain.SessionRepository for testing
type MockSessionRepository struct {
	mu sync.RWMutex

	// Function overrides
	CreateFunc        func(ctx context.Context, session *domain.Session) error
	GetByTokenFunc    func(ctx context.Context, token string) (*domain.Session, error)
	DeleteFunc        func(ctx context.Context, token string) error
	DeleteExpiredFunc func(ctx context.Context) (int64, error)
	CountActiveFunc   func(ctx context.Context) (int64, error)

	// In-memory storage
	Sessions map[string]*domain.Session
}

// NewMockSessionRepository creates a new MockSessionRepository with initialized maps
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		Sessions: make(map[string]*domain.Session),
	}
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Sessions == nil {
		m.Sessions = make(map[string]*domain.Session)
	}
	m.Sessions[session.Token] = session
	return nil
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if session, ok := m.Sessions[token]; ok {
		if session.ExpiresAt.Before(time.Now()) {
			return nil, domain.ErrSessionNotFound
		}
		return session, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (m *MockSessionRepository) Delete(ctx context.Context, token string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Sessions, token)
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	now := time.Now()
	for token, session := range m.Sessions {
		if session.ExpiresAt.Before(now) {
			delete(m.Sessions, token)
			count++
		}
	}
	return count, nil
}

func (m *MockSessionRepository) CountActive(ctx context.Context) (int64, error) {
	if m.CountActiveFunc != nil {
		return m.CountActiveFunc(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	now := time.Now()
	for _, session := range m.Sessions {
		if session.ExpiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

// MockLimiter implements ratelimit.Limiter for testing. The default behavior
// allows every request; set CheckFunc to simulate denials.
type MockLimiter struct {
	mu sync.RWMutex

	// Function overrides
	CheckFunc func(ctx context.Context, identifier, action string, cfg ratelimit.Config) (ratelimit.Decision, error)
	ResetFunc func(ctx context.Context, identifier, action string) error

	// Call tracking
	CheckCalls []LimiterCall
	ResetCalls []LimiterCall
}

// LimiterCall records a call to Check or Reset
type LimiterCall struct {
	Identifier string
	Action     string
}

// NewMockLimiter creates a new MockLimiter that allows everything
func NewMockLimiter() *MockLimiter {
	return &MockLimiter{}
}

func (m *MockLimiter) Check(ctx context.Context, identifier, action string, cfg ratelimit.Config) (ratelimit.Decision, error) {
	m.mu.Lock()
	m.CheckCalls = append(m.CheckCalls, LimiterCall{Identifier: identifier, Action: action})
	m.mu.Unlock()

	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, identifier, action, cfg)
	}
	return ratelimit.Decision{Allowed: true, Remaining: cfg.MaxRequests}, nil
}

func (m *MockLimiter) Reset(ctx context.Context, identifier, action string) error {
	m.mu.Lock()
	m.ResetCalls = append(m.ResetCalls, LimiterCall{Identifier: identifier, Action: action})
	m.mu.Unlock()

	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, identifier, action)
	}
	return nil
}

// GetCheckCalls returns all recorded Check calls
func (m *MockLimiter) GetCheckCalls() []LimiterCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]LimiterCall{}, m.CheckCalls...)
}

// GetResetCalls returns all recorded Reset calls
func (m *MockLimiter) GetResetCalls() []LimiterCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]LimiterCall{}, m.ResetCalls...)
}

// MockRecorder implements audit.Recorder for testing
type MockRecorder struct {
	mu sync.RWMutex

	// Function override
	RecordFunc func(ctx context.Context, event audit.Event)

	// Call tracking
	Events []audit.Event
}

// NewMockRecorder creates a new MockRecorder
func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		Events: make([]audit.Event, 0),
	}
}

func (m *MockRecorder) Record(ctx context.Context, event audit.Event) {
	if m.RecordFunc != nil {
		m.RecordFunc(ctx, event)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Events = append(m.Events, event)
}

// GetEvents returns all recorded events
func (m *MockRecorder) GetEvents() []audit.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]audit.Event{}, m.Events...)
}

// EventNames returns the names of recorded events in order
func (m *MockRecorder) EventNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.Events))
	for _, e := range m.Events {
		names = append(names, e.Name)
	}
	return names
}

// Reset clears all recorded events
func (m *MockRecorder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = make([]audit.Event, 0)
}
