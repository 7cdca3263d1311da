package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/buildsafe/internal/history"
	"git.home.luguber.info/inful/buildsafe/internal/job"
	"git.home.luguber.info/inful/buildsafe/internal/logfields"
)

// Manager locates and prepares the data directory of one workdir.
type Manager struct {
	workdir string
	dataDir string
}

// NewManager returns a manager for workdir without touching the filesystem.
func NewManager(workdir string) *Manager {
	return &Manager{
		workdir: workdir,
		dataDir: job.DataDir(workdir),
	}
}

// Create ensures the data directory layout exists. The directory carries an
// ignore-all .gitignore so build state never gets committed alongside the
// documentation it belongs to.
func (m *Manager) Create() error {
	if err := os.MkdirAll(filepath.Join(m.dataDir, job.JobsDir), 0o750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	ignore := filepath.Join(m.dataDir, ".gitignore")
	if _, err := os.Stat(ignore); os.IsNotExist(err) {
		if err := os.WriteFile(ignore, []byte("*\n"), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", ignore, err)
		}
	}

	slog.Debug("Data directory ready", logfields.Path(m.dataDir))
	return nil
}

// Exists reports whether the workdir already has a data directory.
func (m *Manager) Exists() bool {
	info, err := os.Stat(m.dataDir)
	return err == nil && info.IsDir()
}

// Workdir returns the supervised working directory.
func (m *Manager) Workdir() string {
	return m.workdir
}

// Path returns the data directory. Reports and the success receipt are
// written directly into it.
func (m *Manager) Path() string {
	return m.dataDir
}

// HistoryPath returns the location of the history database.
func (m *Manager) HistoryPath() string {
	return filepath.Join(m.dataDir, history.DefaultDBName)
}

// JobsPath returns the directory holding per-job records.
func (m *Manager) JobsPath() string {
	return filepath.Join(m.dataDir, job.JobsDir)
}

// Prune removes terminal job records older than maxAge. Running records are
// kept regardless of age.
func (m *Manager) Prune(maxAge time.Duration) error {
	removed, err := job.CleanupOld(m.workdir, maxAge)
	if err != nil {
		return fmt.Errorf("failed to prune job records: %w", err)
	}
	if removed > 0 {
		slog.Debug("Pruned old job records", "removed", removed, logfields.Path(m.dataDir))
	}
	return nil
}
