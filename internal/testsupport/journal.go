package testsupport

import (
	"testing"

	"mux/internal/config"
	"mux/internal/journal"
)

// MustOpenJournal opens the journal configured in cfg and closes it when the
// test finishes.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Journal {
	t.Helper()

	j, err := journal.Open(cfg.Paths.JournalPath)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() {
		_ = j.Close()
	})
	return j
}
