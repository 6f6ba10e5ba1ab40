package cli

import (
	"context"
	"fmt"

	"concrete-quiz-service/internal/config"
	"github.com/spf13/cobra"
)

// NewResetCmd zeroes every ledger entry and deletes all attempts.
func NewResetCmd(configPath *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset every user's rewards and delete all attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			return runReset(cmd.Context(), *configPath)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func runReset(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)
	ledger, closeFn, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()
	return ledger.ResetAll(ctx)
}
