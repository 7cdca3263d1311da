package commands

import (
	"fmt"

	"git.home.luguber.info/inful/buildsafe/internal/envcheck"
)

// EnvCmd implements the 'env' command: report how fragile the current
// terminal looks without launching anything.
type EnvCmd struct{}

func (e *EnvCmd) Run(_ *Global, _ *CLI) error {
	PrintEnvReport(envcheck.Detect())
	return nil
}

// PrintEnvReport renders a detection report for the terminal.
func PrintEnvReport(rep *envcheck.Report) {
	fmt.Printf("Environment: %s\n", rep.Classification)
	for _, signal := range rep.Signals {
		fmt.Printf("  - %s\n", signal)
	}

	if len(rep.Recommendations) > 0 {
		fmt.Println("Recommended settings:")
		for _, rec := range rep.Recommendations {
			fmt.Printf("  - %s: %s\n", rec.Setting, rec.Reason)
		}
	}

	if rep.Fragile() {
		fmt.Println("This terminal can drop its session under load. Builds launched with 'buildsafe run' survive that either way.")
	}
}
