package main

import (
	"fmt"
	"image/png"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/poster-worker/internal/processor"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var overlay string
	var threshold float64
	var padding int

	cmd := &cobra.Command{
		Use:   "inspect <url>",
		Short: "Show detected text and mask regions without modifying the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("threshold") {
				cfg.ConfidenceThreshold = threshold
			}
			if cmd.Flags().Changed("padding") {
				cfg.MaskPadding = padding
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			comps, err := buildComponents(cmd.Context(), cfg, ctx.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer comps.Close()

			analysis, err := comps.processor.Analyze(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Image %dx%d, %d detections, %d regions (threshold %.2f, padding %d)\n",
				analysis.Raster.Bounds().Dx(), analysis.Raster.Bounds().Dy(),
				len(analysis.Detections), len(analysis.Regions), cfg.ConfidenceThreshold, cfg.MaskPadding)

			if len(analysis.Detections) > 0 {
				fmt.Fprint(w, renderTableFor(w,
					[]string{"#", "Text", "Confidence", "Accepted", "Bounds"},
					detectionRows(analysis.Detections, cfg.ConfidenceThreshold),
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft}))
			}
			if len(analysis.Regions) > 0 {
				fmt.Fprint(w, renderTableFor(w,
					[]string{"Region", "Width", "Height"},
					regionRows(analysis.Regions),
					[]columnAlignment{alignLeft, alignRight, alignRight}))
			}

			if overlay != "" {
				if err := writeOverlay(overlay, analysis); err != nil {
					return err
				}
				fmt.Fprintf(w, "Overlay written to %s\n", overlay)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&overlay, "overlay", "", "Write a PNG with detections and regions drawn over the poster")
	cmd.Flags().Float64Var(&threshold, "threshold", processor.DefaultConfidenceThreshold, "Override CONFIDENCE_THRESHOLD")
	cmd.Flags().IntVar(&padding, "padding", processor.DefaultMaskPadding, "Override MASK_PADDING")
	return cmd
}

func detectionRows(dets []processor.Detection, threshold float64) [][]string {
	rows := make([][]string, 0, len(dets))
	for i, d := range dets {
		minX, minY, maxX, maxY := d.Quad.Bounds()
		accepted := "no"
		if d.Confidence > threshold {
			accepted = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			d.Text,
			strconv.FormatFloat(d.Confidence, 'f', 2, 64),
			accepted,
			fmt.Sprintf("(%.0f,%.0f)-(%.0f,%.0f)", minX, minY, maxX, maxY),
		})
	}
	return rows
}

func regionRows(regions []processor.Region) [][]string {
	rows := make([][]string, 0, len(regions))
	for _, r := range regions {
		rows = append(rows, []string{r.String(), strconv.Itoa(r.Width()), strconv.Itoa(r.Height())})
	}
	return rows
}

func writeOverlay(path string, analysis *processor.Analysis) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create overlay: %w", err)
	}
	if err := png.Encode(f, processor.RenderOverlay(analysis)); err != nil {
		f.Close()
		return fmt.Errorf("encode overlay: %w", err)
	}
	return f.Close()
}
