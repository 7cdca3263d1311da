package monitor

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// verdict is the marker-derived outcome of the log stream so far.
type verdict int

const (
	verdictNone verdict = iota
	verdictSuccess
	verdictFailure
)

// Tailer incrementally reads a build log across polls, retaining the last N
// complete lines and scanning them for outcome markers. Builds write the log
// concurrently, so a read may end mid-line; the partial tail is carried into
// the next poll instead of being scanned half-formed.
type Tailer struct {
	path           string
	keep           int
	successMarkers []string
	failureMarkers []string

	offset  int64
	partial []byte
	lines   []string

	verdict     verdict
	verdictLine string
}

// NewTailer creates a tailer for the given log path.
func NewTailer(path string, keep int, successMarkers, failureMarkers []string) *Tailer {
	if keep <= 0 {
		keep = 40
	}
	return &Tailer{
		path:           path,
		keep:           keep,
		successMarkers: successMarkers,
		failureMarkers: failureMarkers,
	}
}

// Poll reads bytes appended since the previous poll and returns how many were
// consumed. A missing log file reads as empty; a log shorter than the last
// offset was truncated, so reading restarts from the top.
func (t *Tailer) Poll() (int64, error) {
	file, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}
	if info.Size() == t.offset {
		return 0, nil
	}

	if _, err := file.Seek(t.offset, io.SeekStart); err != nil {
		return 0, err
	}
	chunk, err := io.ReadAll(file)
	if err != nil {
		return 0, err
	}
	t.offset += int64(len(chunk))
	t.consume(chunk)
	return int64(len(chunk)), nil
}

// consume splits the chunk into complete lines, carrying the trailing partial
// line to the next poll.
func (t *Tailer) consume(chunk []byte) {
	data := append(t.partial, chunk...)
	parts := bytes.Split(data, []byte("\n"))
	t.partial = append([]byte(nil), parts[len(parts)-1]...)

	for _, raw := range parts[:len(parts)-1] {
		line := strings.TrimRight(string(raw), "\r")
		t.appendLine(line)
		t.scanMarkers(line)
	}
}

// appendLine adds a line to the retained tail, dropping the oldest beyond keep.
func (t *Tailer) appendLine(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.keep {
		t.lines = t.lines[len(t.lines)-t.keep:]
	}
}

// scanMarkers updates the verdict from one line. A later marker overrides an
// earlier one: the stream's final word decides how the build ended.
func (t *Tailer) scanMarkers(line string) {
	for _, marker := range t.failureMarkers {
		if marker != "" && strings.Contains(line, marker) {
			t.verdict = verdictFailure
			t.verdictLine = line
			return
		}
	}
	for _, marker := range t.successMarkers {
		if marker != "" && strings.Contains(line, marker) {
			t.verdict = verdictSuccess
			t.verdictLine = line
			return
		}
	}
}

// Tail returns a copy of the retained final lines.
func (t *Tailer) Tail() []string {
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

// Verdict returns the marker outcome and the line that produced it.
func (t *Tailer) Verdict() (verdict, string) {
	return t.verdict, t.verdictLine
}

// watchLog arranges fsnotify wakeups for appends to the log file. Watching
// the containing directory is more reliable than watching the file itself,
// which editors and rotations replace out from under a watch. The returned
// channel coalesces bursts; callers still poll on a timer as the fallback.
func watchLog(path string) (*fsnotify.Watcher, <-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, nil, err
	}

	logBase := filepath.Base(path)
	wake := make(chan struct{}, 1)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != logBase {
					continue
				}
				if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, wake, nil
}
