package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/buildsafe/internal/logfields"
)

// RunEvery executes sweeps on a fixed schedule until the context is
// canceled. The first sweep runs immediately; scan failures are logged and
// the schedule keeps going, since a janitor that dies on a transient error
// is worse than none. A non-nil onReport is called after every successful
// sweep.
func RunEvery(ctx context.Context, s *Sweeper, every time.Duration, onReport func(*Report)) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create sweep scheduler: %w", err)
	}

	sweepOnce := func() {
		report, err := s.Run(ctx)
		if err != nil {
			slog.Error("Scheduled sweep failed", logfields.Error(err))
			return
		}
		if len(report.Matched) > 0 {
			slog.Info("Scheduled sweep finished",
				slog.Int("matched", len(report.Matched)),
				slog.Int("cleaned", report.Cleaned()))
		}
		if onReport != nil {
			onReport(report)
		}
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(sweepOnce),
		gocron.WithName("recovery-sweep"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule sweeps: %w", err)
	}

	slog.Info("Running recovery sweeps on a schedule", slog.Duration("every", every))
	scheduler.Start()

	<-ctx.Done()
	return scheduler.Shutdown()
}
