package testutil

import (
	"testing"

	"kaloriq-go/internal/config"
	"kaloriq-go/internal/database"
)

// NewTestHealthStore creates a migrated in-memory health store that is
// closed when the test completes.
func NewTestHealthStore(t *testing.T) *database.SQLiteHealthStore {
	t.Helper()

	s, err := database.NewHealthStoreFromConfig(config.HealthStoreConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("failed to create health store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// NewUnavailableHealthStore creates a health store that behaves like a
// device without health data support.
func NewUnavailableHealthStore(t *testing.T) *database.SQLiteHealthStore {
	t.Helper()

	s, err := database.NewHealthStoreFromConfig(config.HealthStoreConfig{Type: "memory", Unavailable: true})
	if err != nil {
		t.Fatalf("failed to create health store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}
