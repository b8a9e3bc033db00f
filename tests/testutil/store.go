package testutil

import (
	"testing"

	"github.com/nhle/mail-assistant/internal/store"
)

// NewTestStore creates an in-memory MessageStore with all migrations
// applied. It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.MessageStore {
	t.Helper()

	s, err := store.NewMessageStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}
