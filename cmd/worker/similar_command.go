package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/poster-worker/internal/storage"
)

func newSimilarCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "similar <url>",
		Short: "Find indexed posters that look like the poster at url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.QdrantURL == "" {
				return errors.New("QDRANT_URL is not configured")
			}

			comps, err := buildComponents(cmd.Context(), cfg, ctx.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer comps.Close()

			raster, err := comps.fetcher.Fetch(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			hits, err := comps.index.SearchSimilar(cmd.Context(), raster, limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(w, "No similar posters indexed")
				return nil
			}
			fmt.Fprint(w, renderTableFor(w, []string{"Score", "Key", "URL"}, similarRows(hits),
				[]columnAlignment{alignRight, alignLeft, alignLeft}))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	return cmd
}

func similarRows(hits []storage.SimilarPoster) [][]string {
	rows := make([][]string, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, []string{fmt.Sprintf("%.4f", h.Score), h.Key, h.URL})
	}
	return rows
}
