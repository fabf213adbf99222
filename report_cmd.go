package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yes1688/arkprobe/internal/report"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render or show a saved JSON report",
	}

	cmd.AddCommand(newReportRenderCmd())
	cmd.AddCommand(newReportShowCmd())

	return cmd
}

func newReportRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "render <report.json>",
		Short:       "Write HTML and/or Markdown next to a JSON report",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runReportRender,
	}

	cmd.Flags().StringSlice("format", []string{formatHTML, formatMarkdown}, "formats to render (html, markdown)")

	return cmd
}

func newReportShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "show <report.json>",
		Short:       "Render a JSON report as Markdown in the terminal",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runReportShow,
	}

	cmd.Flags().Int("width", 0, "word-wrap width (default 100)")

	return cmd
}

func runReportRender(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	formats, _ := cmd.Flags().GetStringSlice("format")

	rr, err := report.Load(args[0])
	if err != nil {
		return err
	}

	paths, err := renderDerived(args[0], rr, formats)
	if err != nil {
		return err
	}

	for _, p := range paths {
		cc.Statusf("Wrote %s\n", p)
	}

	return nil
}

func runReportShow(cmd *cobra.Command, args []string) error {
	width, _ := cmd.Flags().GetInt("width")

	rr, err := report.Load(args[0])
	if err != nil {
		return err
	}

	if err := report.RenderTerminal(os.Stdout, rr, width); err != nil {
		return fmt.Errorf("showing %s: %w", args[0], err)
	}

	return nil
}
