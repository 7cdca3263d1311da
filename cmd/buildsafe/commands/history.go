package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"git.home.luguber.info/inful/buildsafe/internal/config"
	bserrors "git.home.luguber.info/inful/buildsafe/internal/errors"
	"git.home.luguber.info/inful/buildsafe/internal/history"
	"git.home.luguber.info/inful/buildsafe/internal/workspace"
)

// HistoryCmd implements the 'history' command: list recent supervised runs
// recorded in the workdir's history store.
type HistoryCmd struct {
	Limit  int  `default:"20" help:"Maximum number of runs to list"`
	Failed bool `help:"Only list runs that did not succeed"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}

	workdir, err := workingDir()
	if err != nil {
		return err
	}

	path := historyPath(cfg, workdir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No run history recorded yet")
		return nil
	}

	store, err := history.Open(path)
	if err != nil {
		return bserrors.HistoryError("open", err)
	}
	defer func() {
		_ = store.Close()
	}()

	runs, err := store.Recent(context.Background(), h.Limit, h.Failed)
	if err != nil {
		return bserrors.HistoryError("query", err)
	}
	if len(runs) == 0 {
		fmt.Println("No matching runs recorded")
		return nil
	}

	printRuns(runs)
	return nil
}

// historyPath resolves the history database location the same way 'run' does
// when it records builds.
func historyPath(cfg *config.Config, workdir string) string {
	if cfg.History != nil && cfg.History.Path != "" {
		return cfg.History.Path
	}
	return workspace.NewManager(workdir).HistoryPath()
}

func printRuns(runs []history.Run) {
	fmt.Printf("%-20s %-10s %-9s %-5s %s\n", "STARTED", "STATE", "DURATION", "EXIT", "COMMAND")
	for _, r := range runs {
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprintf("%d", *r.ExitCode)
		}
		duration := "-"
		if r.DurationMS > 0 {
			duration = (time.Duration(r.DurationMS) * time.Millisecond).Round(time.Second).String()
		}
		fmt.Printf("%-20s %-10s %-9s %-5s %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.State,
			duration,
			exit,
			trimCmdline(r.Command))
	}
}
