package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/poster-worker/internal/processor"
	"github.com/adverant/nexus/poster-worker/internal/storage"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var key string
	var out string

	cmd := &cobra.Command{
		Use:   "process <url>",
		Short: "Run the text-removal pipeline once for a poster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd.ErrOrStderr())

			comps, err := buildComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			posterURL := strings.TrimSpace(args[0])
			if key == "" {
				key = storage.KeyFor(posterURL)
			}

			result, err := comps.processor.Process(cmd.Context(), posterURL, key)
			if err != nil {
				return err
			}

			if out != "" {
				if err := os.WriteFile(out, result.Data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
			}

			fmt.Fprint(cmd.OutOrStdout(), renderTableFor(cmd.OutOrStdout(),
				[]string{"Field", "Value"}, processSummaryRows(result), nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Cache key (default: MD5 of the URL)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Also write the resulting JPEG to this file")
	return cmd
}

func processSummaryRows(result *processor.ProcessResult) [][]string {
	regions := make([]string, 0, len(result.Regions))
	for _, r := range result.Regions {
		regions = append(regions, r.String())
	}

	rows := [][]string{
		{"Key", result.Key},
		{"URL", result.URL},
		{"Outcome", string(result.Outcome)},
		{"Detections", strconv.Itoa(result.Detections)},
		{"Regions", strings.Join(regions, " ")},
		{"Bytes", strconv.Itoa(len(result.Data))},
		{"Duration", result.Duration.Round(time.Millisecond).String()},
	}
	if result.Err != nil {
		rows = append(rows, []string{"Error", result.Err.Error()})
	}
	return rows
}
