package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"

	"github.com/sirupsen/logrus"
)

const bootstrapPasswordLength = 24

// BootstrapAccount creates cfg.BootstrapUsername with a random password when
// that account does not exist yet. It does nothing when no username is configured.
func BootstrapAccount(ctx context.Context, repo UserRepository, cfg Config) error {
	if cfg.BootstrapUsername == "" {
		return nil
	}

	_, err := repo.FindByUsername(ctx, cfg.BootstrapUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	password, err := generatePassword(bootstrapPasswordLength)
	if err != nil {
		return err
	}

	hash, err := HashPassword(password, cfg.BcryptCost)
	if err != nil {
		return err
	}

	if _, err := repo.Create(ctx, cfg.BootstrapUsername, hash); err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			// another instance won the race
			return nil
		}
		return err
	}

	if cfg.InitialPasswordPath != "" {
		if err := os.WriteFile(cfg.InitialPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		logrus.WithField("username", cfg.BootstrapUsername).Infof("bootstrap account created; password written to %s", cfg.InitialPasswordPath)
	} else {
		logrus.WithField("username", cfg.BootstrapUsername).Infof("bootstrap account created password=%s", password)
	}

	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 encoding: need 3/4 overhead; ensure enough bytes
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
