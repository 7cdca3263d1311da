// Package report renders build summaries for humans.
//
// After a monitored build reaches a terminal state the supervisor writes
// report.md and report.html into the workdir's data directory. The markdown
// is the source of truth; the HTML page is a goldmark rendering of it.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"git.home.luguber.info/inful/buildsafe/internal/job"
)

const (
	// MarkdownName is the report file written next to the build log.
	MarkdownName = "report.md"
	// HTMLName is the rendered companion of MarkdownName.
	HTMLName = "report.html"
)

// Write renders j into dataDir as both markdown and HTML.
func Write(dataDir string, j *job.Job) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	md := Markdown(j)
	if err := os.WriteFile(filepath.Join(dataDir, MarkdownName), []byte(md), 0o644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}

	page, err := HTML(j, md)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dataDir, HTMLName), page, 0o644); err != nil {
		return fmt.Errorf("write html report: %w", err)
	}
	return nil
}

// Markdown renders the report body for j.
func Markdown(j *job.Job) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	fmt.Fprintf(&b, "# Build %s\n\n", statusWord(j.State))
	fmt.Fprintf(&b, "`%s` in `%s`\n\n", j.CommandLine(), j.Workdir)

	b.WriteString("| Field | Value |\n")
	b.WriteString("|-------|-------|\n")
	fmt.Fprintf(&b, "| Job | `%s` |\n", j.ID)
	fmt.Fprintf(&b, "| State | %s |\n", j.State)
	if j.ExitCode != nil {
		fmt.Fprintf(&b, "| Exit code | %d |\n", *j.ExitCode)
	}
	if j.Reason != "" {
		fmt.Fprintf(&b, "| Verdict | %s |\n", j.Reason)
	}
	if !j.StartedAt.IsZero() {
		fmt.Fprintf(&b, "| Started | %s |\n", j.StartedAt.Format(time.RFC3339))
	}
	if !j.EndedAt.IsZero() {
		fmt.Fprintf(&b, "| Ended | %s |\n", j.EndedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "| Duration | %s |\n", j.Duration().Round(time.Second))
	}
	fmt.Fprintf(&b, "| Artifacts | %s |\n", artifactCell(p, j))
	if j.PID > 0 {
		fmt.Fprintf(&b, "| Build PID | %d |\n", j.PID)
	}
	if j.LogPath != "" {
		fmt.Fprintf(&b, "| Log | `%s` |\n", j.LogPath)
	}
	if j.Git != nil && j.Git.Commit != "" {
		fmt.Fprintf(&b, "| Commit | `%s`%s |\n", shortCommit(j.Git.Commit), dirtySuffix(j.Git))
		if j.Git.Branch != "" {
			fmt.Fprintf(&b, "| Branch | %s |\n", j.Git.Branch)
		}
	}

	if j.Error != "" {
		fmt.Fprintf(&b, "\n## Error\n\n%s\n", j.Error)
	}

	if len(j.LogTail) > 0 {
		fmt.Fprintf(&b, "\n## Log tail\n\n```text\n%s\n```\n", strings.Join(j.LogTail, "\n"))
	}

	return b.String()
}

// HTML converts the markdown report into a self-contained page.
func HTML(j *job.Job, markdown string) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("render report html: %w", err)
	}

	tpl, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report page template: %w", err)
	}

	var page bytes.Buffer
	err = tpl.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: "Build " + statusWord(j.State),
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("render report page: %w", err)
	}
	return page.Bytes(), nil
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 42rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: left; }
pre { background: #f6f6f6; padding: 0.8rem; overflow-x: auto; }
code { background: #f6f6f6; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`

func statusWord(s job.State) string {
	switch s {
	case job.StateSucceeded:
		return "succeeded"
	case job.StateFailed:
		return "failed"
	case job.StateTimedOut:
		return "timed out"
	case job.StateRunning:
		return "still running"
	case job.StatePending:
		return "pending"
	default:
		return "outcome unknown"
	}
}

func artifactCell(p *message.Printer, j *job.Job) string {
	if j.ArtifactsBefore == 0 && j.ArtifactsAfter == 0 {
		return "none recorded"
	}
	delta := j.ArtifactsAfter - j.ArtifactsBefore
	return p.Sprintf("%d before, %d after (%+d)", j.ArtifactsBefore, j.ArtifactsAfter, delta)
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}

func dirtySuffix(g *job.GitInfo) string {
	if g.Dirty {
		return " (dirty)"
	}
	return ""
}
