package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/poster-worker/internal/queue"
	"github.com/adverant/nexus/poster-worker/internal/storage"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <url>...",
		Short: "Queue cache warm-ups for one or more posters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			enqueuer, err := queue.NewEnqueuer(cfg.RedisURL, cfg.QueueName, cfg.TaskMaxRetry)
			if err != nil {
				return err
			}
			defer enqueuer.Close()

			rows := make([][]string, 0, len(args))
			for _, arg := range args {
				posterURL := strings.TrimSpace(arg)
				key := storage.KeyFor(posterURL)
				queued, err := enqueuer.EnqueuePoster(cmd.Context(), posterURL, key)
				if err != nil {
					return err
				}
				status := "queued"
				if !queued {
					status = "already queued"
				}
				rows = append(rows, []string{key, posterURL, status})
			}

			w := cmd.OutOrStdout()
			fmt.Fprint(w, renderTableFor(w, []string{"Key", "URL", "Status"}, rows, nil))
			return nil
		},
	}
}
