/**
 * Poster Worker - Main Entry Point
 *
 * Removes burned-in titles and taglines from movie posters so they can be
 * used as "guess the movie" visuals.
 *
 * Architecture:
 * - HTTP API serving processed posters by cache key
 * - Asynq consumer warming the cache for registered posters
 * - Pipeline: fetch -> Tesseract text detection -> mask -> Telea inpainting
 * - Content-addressed cache on disk, Redis or MinIO
 * - Optional PostgreSQL ledger and Qdrant similar-poster index
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
