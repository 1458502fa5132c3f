package service

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"college-auth/internal/domain"
	"college-auth/internal/password"
	"college-auth/internal/repository"
)

// memoryUsers is an in-memory repository.UserRepository for service tests.
type memoryUsers struct {
	mu     sync.Mutex
	nextID int64
	byName map[string]domain.User

	getErr    error
	createErr error
	creates   int
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byName: make(map[string]domain.User)}
}

func (m *memoryUsers) Init(context.Context) error { return nil }

func (m *memoryUsers) Create(_ context.Context, user *domain.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return 0, m.createErr
	}
	if _, ok := m.byName[user.Username]; ok {
		return 0, repository.ErrDuplicate
	}
	m.nextID++
	user.ID = m.nextID
	m.byName[user.Username] = *user
	return user.ID, nil
}

func (m *memoryUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.byName[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (m *memoryUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byName {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUsers) HasRole(_ context.Context, role string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byName {
		if u.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byName)
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testHasher() password.Hasher {
	return password.NewBcryptHasher(bcrypt.MinCost)
}

func testPolicy() RegistrationPolicy {
	return RegistrationPolicy{
		DefaultRole:       "STUDENT",
		SignupRoles:       []string{"STUDENT", "FACULTY", "DEPARTMENT", "ADMIN"},
		MinPasswordLength: 6,
	}
}

func newTestServices(t *testing.T) (*memoryUsers, RegistrationService, AuthService) {
	t.Helper()
	users := newMemoryUsers()
	hasher := testHasher()
	return users,
		NewRegistrationService(users, hasher, testPolicy(), testLogger()),
		NewAuthService(users, hasher, testLogger())
}
