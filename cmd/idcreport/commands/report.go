package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/idcreport/pkg/engine"
	"github.com/DrSkyle/idcreport/pkg/engine/model"
)

var ReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Crawl Identity Center and publish the assignment report",
	Long: `Assumes the crawler role, walks every provisioned permission set,
resolves the referenced users and groups, and publishes the CSV and
Excel artifacts to the configured destination.

Example:
  idcreport report --role-arn arn:aws:iam::111111111111:role/idc-crawler --bucket my-reports
  idcreport report --output-dir ./out --permission-sets AdminAccess,ReadOnly`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.Verbose {
			config.Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}))
		}

		eng, err := engine.New(cmd.Context(), engine.WithConfig(config))
		if err != nil {
			return fmt.Errorf("engine init failed: %w", err)
		}

		rep, err := eng.Run(cmd.Context())
		if err != nil {
			if errors.Is(err, engine.ErrPartialResult) {
				printSummary(rep)
			}
			return err
		}

		printSummary(rep)
		return nil
	},
}

func printSummary(rep *model.Report) {
	if rep == nil {
		return
	}
	fmt.Printf("\nReport complete: %d accounts, %d users, %d groups\n",
		len(rep.Accounts), len(rep.Principals.Users), len(rep.Principals.Groups))
}
