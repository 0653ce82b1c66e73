package run

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sitepulse/sitepulse/internal/audit"
)

// ErrNotFound is returned when no run with the requested id exists on disk.
var ErrNotFound = errors.New("run not found")

// Registry reads run records from the runs directory. It holds no state of
// its own; every call reflects the disk at that moment, so live runs and
// runs from previous processes look the same.
type Registry struct {
	runsDir string
	logger  *zap.Logger
}

// NewRegistry creates a registry over runsDir. The directory is created if
// it does not exist yet.
func NewRegistry(runsDir string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create runs directory: %w", err)
	}
	return &Registry{runsDir: runsDir, logger: logger}, nil
}

// Dir returns the root runs directory.
func (rg *Registry) Dir() string { return rg.runsDir }

// RunDir returns the artifact directory for id, rejecting ids that would
// escape the runs directory.
func (rg *Registry) RunDir(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return "", ErrNotFound
	}
	return filepath.Join(rg.runsDir, id), nil
}

// List returns every readable run record, newest first. Entries whose
// run.meta.json is missing or unparseable are logged and skipped.
func (rg *Registry) List() ([]audit.RunMeta, error) {
	entries, err := os.ReadDir(rg.runsDir)
	if err != nil {
		return nil, fmt.Errorf("read runs directory: %w", err)
	}

	metas := make([]audit.RunMeta, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var meta audit.RunMeta
		path := filepath.Join(rg.runsDir, entry.Name(), MetaFileName)
		if err := readJSON(path, &meta); err != nil {
			rg.logger.Warn("skipping unreadable run", zap.String("run_id", entry.Name()), zap.Error(err))
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// Get returns the run record for id.
func (rg *Registry) Get(id string) (audit.RunMeta, error) {
	dir, err := rg.RunDir(id)
	if err != nil {
		return audit.RunMeta{}, err
	}
	var meta audit.RunMeta
	if err := readJSON(filepath.Join(dir, MetaFileName), &meta); err != nil {
		if os.IsNotExist(err) {
			return audit.RunMeta{}, ErrNotFound
		}
		return audit.RunMeta{}, err
	}
	return meta, nil
}

// GetSummary returns the full summary for a completed run. ErrNotFound
// covers both unknown ids and runs that have not completed yet.
func (rg *Registry) GetSummary(id string) (audit.RunSummary, error) {
	dir, err := rg.RunDir(id)
	if err != nil {
		return audit.RunSummary{}, err
	}
	var summary audit.RunSummary
	if err := readJSON(filepath.Join(dir, SummaryFileName), &summary); err != nil {
		if os.IsNotExist(err) {
			return audit.RunSummary{}, ErrNotFound
		}
		return audit.RunSummary{}, err
	}
	return summary, nil
}
