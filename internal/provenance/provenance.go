// Package provenance captures the version-control state of a workdir at
// launch time, so a build outcome can be tied back to the source that
// produced it.
package provenance

import (
	"log/slog"

	git "github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/buildsafe/internal/job"
	"git.home.luguber.info/inful/buildsafe/internal/logfields"
)

// Capture returns the git state of the workdir, or nil when the workdir is
// not inside a repository. Provenance is best effort: a broken repository
// never blocks a launch.
func Capture(workdir string) *job.GitInfo {
	repo, err := git.PlainOpenWithOptions(workdir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil
	}

	head, err := repo.Head()
	if err != nil {
		slog.Debug("Repository has no resolvable HEAD",
			logfields.Workdir(workdir), logfields.Error(err))
		return nil
	}

	info := &job.GitInfo{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	if worktree, err := repo.Worktree(); err == nil {
		if status, err := worktree.Status(); err == nil {
			info.Dirty = !status.IsClean()
		}
	}

	return info
}
