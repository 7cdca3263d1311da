// Package notify publishes build lifecycle events to NATS JetStream.
//
// Publishing is optional and best effort: when notifications are disabled
// the NoopPublisher stands in, and a failed publish never interrupts a
// running supervisor. Consumers subscribe to <subject_prefix>.<kind>, for
// example buildsafe.builds.succeeded.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/buildsafe/internal/config"
	"git.home.luguber.info/inful/buildsafe/internal/job"
	"git.home.luguber.info/inful/buildsafe/internal/logfields"
)

// Event kinds that do not map onto a terminal job state.
const (
	KindStarted = "started"
	KindSwept   = "swept"
)

// Event is the JSON payload published for every lifecycle change. Finished
// events use the terminal job state (succeeded, failed, timed_out, unknown)
// as their kind, so the subject leaf doubles as a coarse filter.
type Event struct {
	Kind      string    `json:"kind"`
	JobID     string    `json:"job_id,omitempty"`
	Workdir   string    `json:"workdir,omitempty"`
	Command   string    `json:"command,omitempty"`
	State     string    `json:"state,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Action    string    `json:"action,omitempty"`
	Commit    string    `json:"commit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits job lifecycle events. Implementations are safe for
// concurrent use.
type Publisher interface {
	JobStarted(j *job.Job)
	JobFinished(j *job.Job)
	Swept(pid int, cmdline string, action string)
	Close() error
}

// NoopPublisher discards all events. It stands in whenever notifications
// are disabled.
type NoopPublisher struct{}

func (NoopPublisher) JobStarted(*job.Job)       {}
func (NoopPublisher) JobFinished(*job.Job)      {}
func (NoopPublisher) Swept(int, string, string) {}
func (NoopPublisher) Close() error              { return nil }

// New returns a publisher for cfg. A nil or disabled config yields a
// NoopPublisher without attempting any connection.
func New(cfg *config.NotifyConfig) (Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return NoopPublisher{}, nil
	}
	return NewNATSPublisher(cfg)
}

// NATSPublisher publishes lifecycle events to a JetStream stream.
type NATSPublisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
	stream string
}

// NewNATSPublisher connects to NATS and ensures the lifecycle stream exists.
func NewNATSPublisher(cfg *config.NotifyConfig) (*NATSPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notify config is required")
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &NATSPublisher{
		conn:   conn,
		js:     js,
		prefix: cfg.SubjectPrefix,
		stream: cfg.Stream,
	}
	if p.prefix == "" {
		p.prefix = "buildsafe.builds"
	}

	if err := p.initStream(); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("NATS publisher initialized",
		"url", cfg.URL,
		"subject_prefix", p.prefix,
		"stream", p.stream)

	return p, nil
}

// initStream creates the JetStream stream backing the lifecycle subjects,
// reusing it when one already exists.
func (p *NATSPublisher) initStream() error {
	if p.stream == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.js.Stream(ctx, p.stream); err == nil {
		return nil
	}

	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        p.stream,
		Description: "Build lifecycle events from buildsafe",
		Subjects:    []string{p.prefix + ".>"},
		MaxAge:      30 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	slog.Info("Created JetStream stream for lifecycle events", "stream", p.stream)
	return nil
}

// JobStarted publishes a started event for a freshly launched job.
func (p *NATSPublisher) JobStarted(j *job.Job) {
	p.publish(&Event{
		Kind:    KindStarted,
		JobID:   j.ID,
		Workdir: j.Workdir,
		Command: j.CommandLine(),
		State:   string(j.State),
		PID:     j.PID,
		Commit:  commitOf(j),
	})
}

// JobFinished publishes the terminal state of a job, using that state as
// the event kind.
func (p *NATSPublisher) JobFinished(j *job.Job) {
	p.publish(&Event{
		Kind:     string(j.State),
		JobID:    j.ID,
		Workdir:  j.Workdir,
		Command:  j.CommandLine(),
		State:    string(j.State),
		ExitCode: j.ExitCode,
		Reason:   j.Reason,
		PID:      j.PID,
		Commit:   commitOf(j),
	})
}

// Swept publishes the outcome of a recovery action on an orphaned process.
func (p *NATSPublisher) Swept(pid int, cmdline string, action string) {
	p.publish(&Event{
		Kind:    KindSwept,
		Command: cmdline,
		PID:     pid,
		Action:  action,
	})
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}

func (p *NATSPublisher) publish(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to marshal lifecycle event", logfields.Error(err))
		return
	}

	subject := p.subjectFor(event.Kind)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		slog.Warn("Failed to publish lifecycle event",
			"subject", subject,
			logfields.Error(err))
		return
	}

	slog.Debug("Published lifecycle event",
		"subject", subject,
		logfields.JobID(event.JobID))
}

func (p *NATSPublisher) subjectFor(kind string) string {
	return p.prefix + "." + kind
}

func commitOf(j *job.Job) string {
	if j.Git == nil {
		return ""
	}
	return j.Git.Commit
}
