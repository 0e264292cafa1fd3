package cli

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-assess/pkg/repositories"
)

func newReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List and show stored feasibility reports",
	}
	cmd.AddCommand(newReportsListCmd(), newReportsShowCmd())
	return cmd
}

// withReports opens the configured report store for the duration of fn.
func withReports(cmd *cobra.Command, fn func(repositories.ReportRepository) error) error {
	e, err := mustEnv(cmd)
	if err != nil {
		return err
	}
	a, err := newReportApp(cmd.Context(), e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a.reports)
}

func newReportsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withReports(cmd, func(reports repositories.ReportRepository) error {
				summaries, err := reports.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				renderReportList(cmd.OutOrStdout(), summaries)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports")
	return cmd
}

func newReportsShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <report-id>",
		Short: "Print a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid report ID %q: %w", args[0], err)
			}
			return withReports(cmd, func(reports repositories.ReportRepository) error {
				report, err := reports.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				switch format {
				case "markdown", "md":
					_, err = fmt.Fprintln(cmd.OutOrStdout(), report.Markdown)
					return err
				case "json":
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				default:
					return fmt.Errorf("unsupported format %q (markdown|json)", format)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "output format (markdown|json)")
	return cmd
}
