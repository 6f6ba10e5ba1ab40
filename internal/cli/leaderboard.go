package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"concrete-quiz-service/internal/config"
	"concrete-quiz-service/internal/domain"
	"github.com/spf13/cobra"
)

// NewLeaderboardCmd prints the admin leaderboard.
func NewLeaderboardCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print users ranked by crowns, stars and best score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaderboard(cmd.Context(), *configPath, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many users (0 for all)")
	return cmd
}

func runLeaderboard(ctx context.Context, configPath string, limit int, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ledger, closeFn, err := openLedger(ctx, cfg, newLogger(cfg.Log.Level))
	if err != nil {
		return err
	}
	defer closeFn()

	entries, err := ledger.Leaderboard(ctx)
	if err != nil {
		return err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return printLeaderboard(out, entries)
}

func printLeaderboard(out io.Writer, entries []domain.LedgerEntry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tUSERNAME\tCROWNS\tSTARS\tBEST\tSTREAK")
	for i, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\n", i+1, e.Username, e.Crowns, e.Stars, e.BestScore, e.ConsecutivePerfectScores)
	}
	return w.Flush()
}
