package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/vigil/internal/core"
	"github.com/hugo-lorenzo-mato/vigil/internal/crashstate"
	"github.com/hugo-lorenzo-mato/vigil/internal/logging"
)

var startupCheckCmd = &cobra.Command{
	Use:   "startup-check",
	Short: "Reconcile crash state from the previous session",
	Long: `Read the durable crash-state flags and report whether the previous
session ended cleanly. Exit code 0 means healthy, 2 means recovery is
required, 3 means a full reset is required after repeated crashes.`,
	RunE: runStartupCheck,
}

func init() {
	rootCmd.AddCommand(startupCheckCmd)
}

func runStartupCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := crashstate.NewStore(cfg.CrashState.Path)
	if err != nil {
		return fmt.Errorf("opening crash state store: %w", err)
	}
	defer store.Close()

	guard := crashstate.NewGuard(store, logging.NewNop().Logger, nil,
		crashstate.WithMaxConsecutiveCrashes(cfg.CrashState.MaxConsecutiveCrashes))

	verdict, err := guard.PerformStartupCheck()
	if err != nil {
		return err
	}

	switch verdict.Kind {
	case core.StartupHealthy:
		cmd.Println("Previous session ended cleanly.")
	case core.StartupRequireRecovery:
		cmd.Printf("Recovery required: %s (region: %s, consecutive crashes: %d)\n",
			verdict.Reason, verdict.LastRegion, verdict.CrashCount)
		cmd.SilenceErrors = true
		return exitError{code: 2}
	case core.StartupRequireFullReset:
		cmd.Printf("Full reset required: %s (region: %s)\n",
			verdict.Reason, verdict.LastRegion)
		cmd.SilenceErrors = true
		return exitError{code: 3}
	}
	return nil
}

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e exitError
	if errors.As(err, &e) {
		return e.code
	}
	return 1
}
