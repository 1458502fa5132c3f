package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"college-auth/internal/domain"
	"college-auth/internal/password"
	"college-auth/internal/repository"
)

// AuthService verifies login credentials.
type AuthService interface {
	Authenticate(ctx context.Context, username, password string) (*domain.Identity, error)
}

type authService struct {
	users  repository.UserRepository
	hasher password.Hasher
	logger logrus.FieldLogger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users repository.UserRepository, hasher password.Hasher, logger logrus.FieldLogger) AuthService {
	return &authService{
		users:  users,
		hasher: hasher,
		logger: logger,
	}
}

func (s *authService) Authenticate(ctx context.Context, username, password string) (*domain.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.equalizeTiming(password)
			s.reject(username)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	ok, err := s.hasher.Matches(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password for %q: %w", username, err)
	}
	if !ok {
		s.reject(username)
		return nil, ErrInvalidCredentials
	}

	return &domain.Identity{
		Username: user.Username,
		Roles:    user.Authorities(),
	}, nil
}

// equalizeTiming spends one hash comparison so that an unknown username costs
// about as much as a wrong password.
func (s *authService) equalizeTiming(plain string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("college-auth-timing-placeholder")
		if err != nil {
			s.logger.WithError(err).Warn("prepare timing placeholder hash")
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash == "" {
		return
	}
	_, _ = s.hasher.Matches(plain, s.dummyHash)
}

func (s *authService) reject(username string) {
	s.logger.WithField("username", username).Info("login rejected")
}
