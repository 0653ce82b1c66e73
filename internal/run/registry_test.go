package run

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitepulse/sitepulse/internal/audit"
)

// writeRunFixture creates a run directory with a meta file for id.
func writeRunFixture(t *testing.T, runsDir, id string, createdAt time.Time, status audit.RunStatus) {
	t.Helper()
	dir := filepath.Join(runsDir, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	meta := audit.RunMeta{
		ID:        id,
		BaseURL:   "https://site.test",
		Status:    status,
		CreatedAt: createdAt,
	}
	require.NoError(t, writeJSONAtomic(filepath.Join(dir, MetaFileName), meta))
}

// TestRegistryListNewestFirst sorts records by creation time descending.
func TestRegistryListNewestFirst(t *testing.T) {
	t.Parallel()

	runsDir := t.TempDir()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	writeRunFixture(t, runsDir, "run-old", base, audit.RunStatusCompleted)
	writeRunFixture(t, runsDir, "run-new", base.Add(time.Hour), audit.RunStatusFailed)
	writeRunFixture(t, runsDir, "run-mid", base.Add(time.Minute), audit.RunStatusAuditing)

	rg, err := NewRegistry(runsDir, zap.NewNop())
	require.NoError(t, err)

	metas, err := rg.List()
	require.NoError(t, err)
	require.Len(t, metas, 3)
	require.Equal(t, "run-new", metas[0].ID)
	require.Equal(t, "run-mid", metas[1].ID)
	require.Equal(t, "run-old", metas[2].ID)
}

// TestRegistryListSkipsUnreadable ignores directories without a valid meta file.
func TestRegistryListSkipsUnreadable(t *testing.T) {
	t.Parallel()

	runsDir := t.TempDir()
	writeRunFixture(t, runsDir, "run-good", time.Now().UTC(), audit.RunStatusCompleted)
	require.NoError(t, os.MkdirAll(filepath.Join(runsDir, "run-empty"), 0o755))
	corrupt := filepath.Join(runsDir, "run-corrupt")
	require.NoError(t, os.MkdirAll(corrupt, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, MetaFileName), []byte("{not json"), 0o644))
	// Stray files at the top level are not runs.
	require.NoError(t, os.WriteFile(filepath.Join(runsDir, "notes.txt"), []byte("x"), 0o644))

	rg, err := NewRegistry(runsDir, zap.NewNop())
	require.NoError(t, err)

	metas, err := rg.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, "run-good", metas[0].ID)
}

// TestRegistryGet fetches a single record and maps missing ids to ErrNotFound.
func TestRegistryGet(t *testing.T) {
	t.Parallel()

	runsDir := t.TempDir()
	writeRunFixture(t, runsDir, "run-a", time.Now().UTC(), audit.RunStatusCompleted)

	rg, err := NewRegistry(runsDir, nil)
	require.NoError(t, err)

	meta, err := rg.Get("run-a")
	require.NoError(t, err)
	require.Equal(t, "run-a", meta.ID)

	_, err = rg.Get("run-missing")
	require.ErrorIs(t, err, ErrNotFound)
}

// TestRegistryRejectsTraversal refuses ids that reach outside the runs dir.
func TestRegistryRejectsTraversal(t *testing.T) {
	t.Parallel()

	rg, err := NewRegistry(t.TempDir(), nil)
	require.NoError(t, err)

	for _, id := range []string{"", "..", "../other", "a/b", `a\b`, "run-..x"} {
		_, err := rg.Get(id)
		require.ErrorIs(t, err, ErrNotFound, "id %q", id)
	}
}

// TestRegistryGetSummary serves summary.json only once it exists.
func TestRegistryGetSummary(t *testing.T) {
	t.Parallel()

	runsDir := t.TempDir()
	writeRunFixture(t, runsDir, "run-a", time.Now().UTC(), audit.RunStatusAuditing)

	rg, err := NewRegistry(runsDir, nil)
	require.NoError(t, err)

	// Still running: no summary yet.
	_, err = rg.GetSummary("run-a")
	require.ErrorIs(t, err, ErrNotFound)

	summary := audit.RunSummary{
		RunMeta: audit.RunMeta{ID: "run-a", Status: audit.RunStatusCompleted},
		Pages:   []audit.PageAuditResult{{URL: "https://site.test/", Status: audit.PageStatusUp}},
	}
	require.NoError(t, writeJSONAtomic(filepath.Join(runsDir, "run-a", SummaryFileName), summary))

	got, err := rg.GetSummary("run-a")
	require.NoError(t, err)
	require.Len(t, got.Pages, 1)
	require.Equal(t, audit.RunStatusCompleted, got.Status)
}

// TestRegistryCreatesRunsDir creates the root directory on construction.
func TestRegistryCreatesRunsDir(t *testing.T) {
	t.Parallel()

	runsDir := filepath.Join(t.TempDir(), "nested", "runs")
	rg, err := NewRegistry(runsDir, nil)
	require.NoError(t, err)
	require.DirExists(t, rg.Dir())

	metas, err := rg.List()
	require.NoError(t, err)
	require.Empty(t, metas)
}
