package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"college-auth/internal/domain"
	"college-auth/internal/password"
	"college-auth/internal/repository"
)

const (
	adminUsername       = "admin"
	adminPasswordLength = 32
)

// BootstrapOptions configures initial admin creation.
type BootstrapOptions struct {
	Enabled      bool
	PasswordPath string
}

// BootstrapAdmin creates an initial admin user when none exists.
// It is idempotent: if an admin already exists, it does nothing.
func BootstrapAdmin(ctx context.Context, users repository.UserRepository, hasher password.Hasher, opts BootstrapOptions, logger logrus.FieldLogger) error {
	if !opts.Enabled {
		return nil
	}

	has, err := users.HasRole(ctx, domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if has {
		return nil
	}

	plain, err := generatePassword(adminPasswordLength)
	if err != nil {
		return fmt.Errorf("generate admin password: %w", err)
	}
	hash, err := hasher.Hash(plain)
	if err != nil {
		return err
	}

	admin := &domain.User{
		Username:     adminUsername,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Name:         "Administrator",
	}
	if _, err := users.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("username %q is taken by a non-admin account", adminUsername)
		}
		return fmt.Errorf("create admin: %w", err)
	}

	if opts.PasswordPath != "" {
		if err := os.WriteFile(opts.PasswordPath, []byte(plain+"\n"), 0o600); err != nil {
			return fmt.Errorf("write admin password: %w", err)
		}
		logger.Infof("initial admin created; credentials written to %s", opts.PasswordPath)
	} else {
		logger.Warnf("initial admin created username=%s password=%s", adminUsername, plain)
	}

	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
