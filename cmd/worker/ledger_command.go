package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/poster-worker/internal/storage"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the processing ledger",
	}

	ledgerCmd.AddCommand(newLedgerShowCommand(ctx))
	ledgerCmd.AddCommand(newLedgerStatsCommand(ctx))

	return ledgerCmd
}

func withLedger(ctx *commandContext, fn func(*storage.PostgresClient) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not configured")
	}
	ledger, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer ledger.Close()
	return fn(ledger)
}

func newLedgerShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <url|key>",
		Short: "Show the ledger entry for a poster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := strings.TrimSpace(args[0])
			key := arg
			if strings.Contains(arg, "://") {
				key = storage.KeyFor(arg)
			}

			return withLedger(ctx, func(ledger *storage.PostgresClient) error {
				entry, err := ledger.GetEntry(cmd.Context(), key)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if entry == nil {
					fmt.Fprintf(w, "No ledger entry for %s\n", key)
					return nil
				}

				rows := [][]string{
					{"Key", entry.CacheKey},
					{"URL", entry.SourceURL},
					{"Outcome", entry.Outcome},
					{"Regions", strconv.Itoa(entry.Regions)},
					{"Detections", strconv.Itoa(entry.Detections)},
					{"Processing time", fmt.Sprintf("%dms", entry.ProcessingTimeMs)},
					{"Attempts", strconv.Itoa(entry.Attempts)},
					{"First run", entry.CreatedAt.Format("2006-01-02 15:04:05")},
					{"Last run", entry.UpdatedAt.Format("2006-01-02 15:04:05")},
				}
				if entry.ErrorCode != "" {
					rows = append(rows, []string{"Error", entry.ErrorCode + ": " + entry.ErrorMessage})
				}
				fmt.Fprint(w, renderTableFor(w, []string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
}

func newLedgerStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count posters by pipeline outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(ctx, func(ledger *storage.PostgresClient) error {
				counts, err := ledger.CountByOutcome(cmd.Context())
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				rows := buildOutcomeRows(counts)
				if len(rows) == 0 {
					fmt.Fprintln(w, "Ledger is empty")
					return nil
				}
				fmt.Fprint(w, renderTableFor(w, []string{"Outcome", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func buildOutcomeRows(counts map[string]int64) [][]string {
	outcomes := make([]string, 0, len(counts))
	for outcome := range counts {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)

	rows := make([][]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		rows = append(rows, []string{outcome, strconv.FormatInt(counts[outcome], 10)})
	}
	return rows
}
