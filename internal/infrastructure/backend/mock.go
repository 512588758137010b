package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

type mockUser struct {
	user domain.User
	hash []byte
}

// Mock is an in-memory credential backend for development and tests.
type Mock struct {
	mu    sync.RWMutex
	users map[string]mockUser
	cost  int
	dummy []byte
}

// NewMock parses entries of the form "email|password|role|name" separated by
// commas. Role defaults to investor and name to the email's local part.
func NewMock(seed string, cost int) (*Mock, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte(id.New()), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	m := &Mock{users: make(map[string]mockUser), cost: cost, dummy: dummy}
	for _, entry := range strings.Split(seed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("mock user %q: want email|password[|role[|name]]", entry)
		}
		role, name := domain.RoleInvestor, ""
		if len(parts) > 2 && parts[2] != "" {
			role = parts[2]
		}
		if len(parts) > 3 {
			name = parts[3]
		}
		if _, err := m.Add(parts[0], parts[1], role, name); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add registers a user and returns it.
func (m *Mock) Add(email, password, role, name string) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	key := domain.NormalizeEmail(email)
	if name == "" {
		name, _, _ = strings.Cut(key, "@")
	}
	u := domain.User{UserID: id.New(), Name: name, Email: key, Role: role}

	m.mu.Lock()
	m.users[key] = mockUser{user: u, hash: hash}
	m.mu.Unlock()
	return &u, nil
}

// Len reports the number of registered users.
func (m *Mock) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

func (m *Mock) Login(_ context.Context, email, password string) (*domain.User, error) {
	m.mu.RLock()
	mu, ok := m.users[domain.NormalizeEmail(email)]
	m.mu.RUnlock()
	if !ok {
		// Unknown emails take as long as a wrong password.
		_ = bcrypt.CompareHashAndPassword(m.dummy, []byte(password))
		return nil, &RejectedError{Message: "invalid email or password"}
	}
	if err := bcrypt.CompareHashAndPassword(mu.hash, []byte(password)); err != nil {
		return nil, &RejectedError{Message: "invalid email or password"}
	}
	u := mu.user
	return &u, nil
}

func (m *Mock) Logout(context.Context, string) error { return nil }
