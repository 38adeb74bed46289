package services

import (
	"context"
	"sync"
)

// MockNotifier records notifications for testing
type MockNotifier struct {
	notifications []Notification
	err           error
	mu            sync.RWMutex
}

// NewMockNotifier creates a new recording notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// FailWith makes every later Notify call return err
func (m *MockNotifier) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Notify records n
func (m *MockNotifier) Notify(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return m.err
}

// Notifications returns a copy of everything recorded
func (m *MockNotifier) Notifications() []Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// OfType returns recorded notifications of one type
func (m *MockNotifier) OfType(kind string) []Notification {
	var out []Notification
	for _, n := range m.Notifications() {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}
