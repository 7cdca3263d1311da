// Package artifact observes build output directories. Artifact counts are a
// completion heuristic of last resort; the success receipt written by a
// confirmed monitor run is always preferred.
package artifact

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Snapshot captures the artifact state of an output directory at one instant.
type Snapshot struct {
	Dir     string    `json:"dir"`
	Glob    string    `json:"glob"`
	Count   int       `json:"count"`
	TakenAt time.Time `json:"taken_at"`
}

// Delta pairs the snapshots taken before launch and after the build ends.
type Delta struct {
	Before Snapshot `json:"before"`
	After  Snapshot `json:"after"`
}

// Grew reports whether the build produced new matching files.
func (d Delta) Grew() bool {
	return d.After.Count > d.Before.Count
}

// Take counts files matching glob under dir, recursively. A missing directory
// yields a zero-count snapshot, not an error: before the first build the
// output directory legitimately does not exist.
func Take(dir, glob string) (Snapshot, error) {
	snap := Snapshot{Dir: dir, Glob: glob, TakenAt: time.Now()}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	if !info.IsDir() {
		return snap, nil
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Files vanishing mid-walk is normal while a build is writing.
			return nil
		}
		if d.IsDir() {
			return nil
		}
		matched, merr := filepath.Match(glob, d.Name())
		if merr != nil {
			return merr
		}
		if matched {
			snap.Count++
		}
		return nil
	})
	return snap, err
}

// Stable re-takes the snapshot after window and reports whether the count
// held still. A stable non-zero count suggests a finished build rather than
// one mid-write.
func Stable(ctx context.Context, snap Snapshot, window time.Duration) (bool, Snapshot, error) {
	select {
	case <-ctx.Done():
		return false, snap, ctx.Err()
	case <-time.After(window):
	}
	again, err := Take(snap.Dir, snap.Glob)
	if err != nil {
		return false, again, err
	}
	return again.Count == snap.Count, again, nil
}

// LikelyComplete applies the completion heuristic to an output directory.
// A success receipt in dataDir wins outright; otherwise the artifact count
// must be non-zero and stable across the window. The returned reason is
// suitable for operator-facing logs.
func LikelyComplete(ctx context.Context, dataDir, artifactDir, glob string, window time.Duration) (bool, string) {
	if dataDir != "" {
		if receipt, err := LoadReceipt(dataDir); err == nil && receipt != nil {
			return true, "success receipt from " + receipt.FinishedAt.Format(time.RFC3339)
		}
	}

	snap, err := Take(artifactDir, glob)
	if err != nil || snap.Count == 0 {
		return false, "no artifacts found"
	}
	stable, _, err := Stable(ctx, snap, window)
	if err != nil {
		return false, "artifact re-check failed"
	}
	if !stable {
		return false, "artifact count still changing"
	}
	return true, "non-zero artifact count stable across re-check"
}
