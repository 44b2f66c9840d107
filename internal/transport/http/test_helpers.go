package http

import (
	"context"
	"testing"
	"time"

	"github.com/parlorchat/parlor-server/internal/auth"
	"github.com/parlorchat/parlor-server/internal/store"
	"github.com/parlorchat/parlor-server/internal/store/sqlite"
)

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.Store, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}

// registerTestUser registers a user through the auth service and returns the
// issued token and stored record.
func registerTestUser(t *testing.T, svc *auth.Service, username, name string) (string, *store.User) {
	t.Helper()

	token, user, err := svc.Register(context.Background(), username, "password123", name)
	if err != nil {
		t.Fatalf("failed to register %s: %v", username, err)
	}
	return token, user
}
