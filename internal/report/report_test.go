package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildsafe/internal/job"
)

func finishedJob(t *testing.T, state job.State) *job.Job {
	t.Helper()
	j := job.New(t.TempDir(), "npm", []string{"run", "build"})
	j.State = state
	j.StartedAt = time.Now().Add(-3 * time.Minute)
	j.EndedAt = time.Now()
	j.PID = 4242
	return j
}

func TestMarkdownFailedBuild(t *testing.T) {
	j := finishedJob(t, job.StateFailed)
	code := 2
	j.ExitCode = &code
	j.Reason = "exit code 2"
	j.LogTail = []string{"compiling...", "error Command failed with exit code 2."}

	md := Markdown(j)

	assert.True(t, strings.HasPrefix(md, "# Build failed\n"))
	assert.Contains(t, md, "| Exit code | 2 |")
	assert.Contains(t, md, "| Verdict | exit code 2 |")
	assert.Contains(t, md, "| Duration | 3m0s |")
	assert.Contains(t, md, "```text\ncompiling...\nerror Command failed with exit code 2.\n```")
}

func TestMarkdownFormatsArtifactCounts(t *testing.T) {
	j := finishedJob(t, job.StateSucceeded)
	j.ArtifactsBefore = 1204
	j.ArtifactsAfter = 1987

	md := Markdown(j)

	assert.Contains(t, md, "| Artifacts | 1,204 before, 1,987 after (+783) |")
}

func TestMarkdownOmitsEmptySections(t *testing.T) {
	j := finishedJob(t, job.StateUnknown)

	md := Markdown(j)

	assert.True(t, strings.HasPrefix(md, "# Build outcome unknown\n"))
	assert.Contains(t, md, "| Artifacts | none recorded |")
	assert.NotContains(t, md, "| Exit code |")
	assert.NotContains(t, md, "## Error")
	assert.NotContains(t, md, "## Log tail")
}

func TestMarkdownIncludesProvenance(t *testing.T) {
	j := finishedJob(t, job.StateSucceeded)
	j.Git = &job.GitInfo{Commit: "0a1b2c3d4e5f67890a1b2c3d4e5f67890a1b2c3d", Branch: "main", Dirty: true}

	md := Markdown(j)

	assert.Contains(t, md, "| Commit | `0a1b2c3d` (dirty) |")
	assert.Contains(t, md, "| Branch | main |")
}

func TestHTMLWrapsRenderedMarkdown(t *testing.T) {
	j := finishedJob(t, job.StateSucceeded)
	j.LogTail = []string{"Generated static files in build."}

	page, err := HTML(j, Markdown(j))
	require.NoError(t, err)

	html := string(page)
	assert.Contains(t, html, "<title>Build succeeded</title>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<pre>")
	assert.Contains(t, html, "Generated static files in build.")
}

func TestWriteCreatesBothFiles(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), ".buildsafe")
	j := finishedJob(t, job.StateSucceeded)

	require.NoError(t, Write(dataDir, j))

	md, err := os.ReadFile(filepath.Join(dataDir, MarkdownName))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Build succeeded")

	page, err := os.ReadFile(filepath.Join(dataDir, HTMLName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(page), "<!DOCTYPE html>"))
}
