package artifact

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// PageProbe summarizes the structural sanity of one generated HTML page.
// A page with a title and rendered body content is evidence that the build
// finished writing real output rather than dying mid-emit.
type PageProbe struct {
	Path  string // Probed file
	Title string // Contents of the <title> element
	Body  bool   // True when <body> carries rendered content
}

// Healthy reports whether the page looks like complete generated output.
func (p *PageProbe) Healthy() bool {
	return p.Title != "" && p.Body
}

// ProbeNewest locates the most recently modified HTML page under dir and
// probes its structure. Returns (nil, nil) when the directory holds no pages.
func ProbeNewest(dir string) (*PageProbe, error) {
	path, err := newestPage(dir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, nil
	}
	return ProbePage(path)
}

// ProbePage parses one HTML file and checks for real page structure.
func ProbePage(path string) (*PageProbe, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open generated page: %w", err)
	}
	defer func() {
		_ = file.Close() // Ignore close errors on read-only operation
	}()

	probe, err := probeReader(file)
	if err != nil {
		return nil, err
	}
	probe.Path = path
	return probe, nil
}

// probeReader parses HTML and extracts the structural signals.
func probeReader(r io.Reader) (*PageProbe, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated page: %w", err)
	}

	probe := &PageProbe{}

	var inspect func(*html.Node)
	inspect = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if probe.Title == "" {
					probe.Title = textContent(n)
				}
			case "body":
				if hasRenderedContent(n) {
					probe.Body = true
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			inspect(c)
		}
	}

	inspect(doc)
	return probe, nil
}

// textContent extracts trimmed text from a node and its children.
func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}

	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text.WriteString(textContent(c))
	}

	return strings.TrimSpace(text.String())
}

// hasRenderedContent reports whether a body node carries any element child
// or non-whitespace text. An empty body is the signature of a build that was
// killed between emitting the shell and rendering the page.
func hasRenderedContent(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return true
		}
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			return true
		}
	}
	return false
}

// newestPage returns the most recently modified .html file under dir, or ""
// when none exists.
func newestPage(dir string) (string, error) {
	var newest string
	var newestAt time.Time

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}
		if newest == "" || info.ModTime().After(newestAt) {
			newest = path
			newestAt = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan output directory: %w", err)
	}
	return newest, nil
}
