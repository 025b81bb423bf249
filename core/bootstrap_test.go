package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBootstrapAccountDisabled(t *testing.T) {
	repo := newMemUserRepository()
	require.NoError(t, BootstrapAccount(context.Background(), repo, Config{BcryptCost: bcrypt.MinCost}))
	assert.Zero(t, repo.count(), "no account expected without BootstrapUsername")
}

func TestBootstrapAccountWritesPassword(t *testing.T) {
	repo := newMemUserRepository()
	path := filepath.Join(t.TempDir(), "initial_password")
	cfg := Config{BcryptCost: bcrypt.MinCost, BootstrapUsername: "demo", InitialPasswordPath: path}

	require.NoError(t, BootstrapAccount(context.Background(), repo, cfg))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	password := strings.TrimSpace(string(raw))
	assert.Len(t, password, bootstrapPasswordLength)

	svc := newTestService(t, repo)
	_, err = svc.Authenticate(context.Background(), "demo", password)
	require.NoError(t, err, "bootstrap credentials do not authenticate")

	// second run is a no-op
	require.NoError(t, BootstrapAccount(context.Background(), repo, cfg))
	assert.Equal(t, 1, repo.creates)
}

func TestBootstrapAccountStoreError(t *testing.T) {
	repo := newMemUserRepository()
	repo.findErr = errors.New("db down")
	cfg := Config{BcryptCost: bcrypt.MinCost, BootstrapUsername: "demo"}

	assert.Error(t, BootstrapAccount(context.Background(), repo, cfg))
}
