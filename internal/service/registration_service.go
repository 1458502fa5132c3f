package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"college-auth/internal/domain"
	"college-auth/internal/password"
	"college-auth/internal/repository"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 64
	maxPasswordLength = 72 // bcrypt ignores anything longer
	maxProfileLength  = 255
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// SignupInput carries a signup request. Password is plaintext and is never stored.
type SignupInput struct {
	Username string
	Password string
	Name     string
	Email    string
	Phone    string
	Role     string
}

// RegistrationPolicy controls what a signup may contain.
type RegistrationPolicy struct {
	DefaultRole       string
	SignupRoles       []string
	MinPasswordLength int
}

// RegistrationService creates new accounts.
type RegistrationService interface {
	Register(ctx context.Context, in SignupInput) (*domain.User, error)
}

type registrationService struct {
	users       repository.UserRepository
	hasher      password.Hasher
	defaultRole string
	signupRoles map[string]struct{}
	minPassword int
	logger      logrus.FieldLogger
}

func NewRegistrationService(users repository.UserRepository, hasher password.Hasher, policy RegistrationPolicy, logger logrus.FieldLogger) RegistrationService {
	roles := make(map[string]struct{}, len(policy.SignupRoles))
	for _, r := range policy.SignupRoles {
		r = domain.NormalizeRole(r)
		if r == "" || r == domain.RoleAdmin {
			continue
		}
		roles[r] = struct{}{}
	}
	minPassword := policy.MinPasswordLength
	if minPassword < 1 {
		minPassword = 1
	}
	return &registrationService{
		users:       users,
		hasher:      hasher,
		defaultRole: domain.NormalizeRole(policy.DefaultRole),
		signupRoles: roles,
		minPassword: minPassword,
		logger:      logger,
	}
}

func (s *registrationService) Register(ctx context.Context, in SignupInput) (*domain.User, error) {
	user, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"username": user.Username,
		"role":     user.Role,
	}).Info("user registered")

	return sanitizeUser(user), nil
}

func (s *registrationService) validate(in SignupInput) (*domain.User, error) {
	username := strings.TrimSpace(in.Username)
	switch {
	case username == "":
		return nil, invalid("username", "is required")
	case len(username) < minUsernameLength || len(username) > maxUsernameLength:
		return nil, invalid("username", fmt.Sprintf("must be %d to %d characters", minUsernameLength, maxUsernameLength))
	case !usernamePattern.MatchString(username):
		return nil, invalid("username", "may only contain letters, digits, '.', '_' and '-'")
	}

	switch {
	case strings.TrimSpace(in.Password) == "":
		return nil, invalid("password", "is required")
	case utf8.RuneCountInString(in.Password) < s.minPassword:
		return nil, invalid("password", fmt.Sprintf("must be at least %d characters", s.minPassword))
	case len(in.Password) > maxPasswordLength:
		return nil, invalid("password", fmt.Sprintf("must be at most %d bytes", maxPasswordLength))
	}

	email := strings.TrimSpace(in.Email)
	if email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return nil, invalid("email", "is not a valid address")
		}
	}

	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	if len(name) > maxProfileLength {
		return nil, invalid("name", "is too long")
	}
	if len(phone) > maxProfileLength {
		return nil, invalid("phone", "is too long")
	}

	role, err := s.resolveRole(in.Role)
	if err != nil {
		return nil, err
	}

	return &domain.User{
		Username: username,
		Role:     role,
		Name:     name,
		Email:    email,
		Phone:    phone,
	}, nil
}

func (s *registrationService) resolveRole(requested string) (string, error) {
	role := domain.NormalizeRole(requested)
	if role == "" {
		return s.defaultRole, nil
	}
	if _, ok := s.signupRoles[role]; !ok {
		return "", invalid("role", fmt.Sprintf("%q cannot be chosen at signup", role))
	}
	return role, nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clean := *user
	clean.PasswordHash = ""
	return &clean
}
