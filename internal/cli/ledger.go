package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/filestore"
	pgarchive "live-quiz-service/internal/infra/postgres"
)

// NewLedgerCmd prints the scoreboard recomputed from the answer log.
func NewLedgerCmd(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		verify bool
	)
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Print scores recomputed from the answer log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.Data.Dir == config.MemoryDataDir {
				return fmt.Errorf("ledger needs a data directory")
			}
			logger := newLogger(cfg)
			ledger := app.NewLedger(filestore.New(cfg.Data.Dir, logger))

			entries, err := ledger.Leaderboard(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if err := printLeaderboard(cmd.OutOrStdout(), entries); err != nil {
				return err
			}
			if !verify {
				return nil
			}
			scores, err := ledger.Scores(cmd.Context())
			if err != nil {
				return err
			}
			return verifyArchive(cmd.Context(), cmd.OutOrStdout(), cfg, scores)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the top N players")
	cmd.Flags().BoolVar(&verify, "verify", false, "compare the ledger with the postgres answer archive")
	return cmd
}

func printLeaderboard(w io.Writer, entries []domain.LeaderboardEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPLAYER\tSCORE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", e.Rank, e.Player, e.Score)
	}
	return tw.Flush()
}

func verifyArchive(ctx context.Context, w io.Writer, cfg config.Config, scores map[string]int) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	archived, err := pgarchive.NewAnswerArchive(pool).TotalsByPlayer(ctx)
	if err != nil {
		return err
	}
	diffs := diffTotals(scores, archived)
	if len(diffs) == 0 {
		fmt.Fprintln(w, "archive matches answer log")
		return nil
	}
	for _, d := range diffs {
		fmt.Fprintln(w, d)
	}
	return fmt.Errorf("archive differs from answer log for %d player(s)", len(diffs))
}

// diffTotals lists players whose totals disagree. The archive survives a bulk
// clear, so players missing from the log are reported too.
func diffTotals(log, archive map[string]int) []string {
	players := make(map[string]struct{}, len(log)+len(archive))
	for p := range log {
		players[p] = struct{}{}
	}
	for p := range archive {
		players[p] = struct{}{}
	}
	names := make([]string, 0, len(players))
	for p := range players {
		names = append(names, p)
	}
	sort.Strings(names)

	var diffs []string
	for _, p := range names {
		if log[p] != archive[p] {
			diffs = append(diffs, fmt.Sprintf("%s: log=%d archive=%d", p, log[p], archive[p]))
		}
	}
	return diffs
}
