package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aluiziolira/catalog-harvest/internal/cli"
	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/aluiziolira/catalog-harvest/reconcile"
	"github.com/spf13/cobra"
)

var (
	refreshAll   bool
	refreshQuick bool
)

var rootCmd = &cobra.Command{
	Use:   "refresh <category-slug> | --all [--quick]",
	Short: "Repairs image references of stored categories.",
	Long: "Decodes HTML entities, upgrades small image variants, re-fetches detail pages " +
		"of products with expired or missing images and assigns placeholders to what " +
		"remains. --quick skips the re-fetch.",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().BoolVar(&refreshAll, "all", false, "Refresh every category")
	rootCmd.Flags().BoolVar(&refreshQuick, "quick", false, "Offline repairs only, no network")
}

func main() {
	ctx, stop := cli.SignalContext()
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	rt, err := cli.Setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	categories, err := cli.Targets(rt.Config, args, refreshAll)
	if err != nil {
		return err
	}
	engine, err := rt.Engine()
	if err != nil {
		return err
	}

	strategies := reconcile.All
	if refreshQuick {
		strategies = reconcile.Offline
	}

	ctx := cmd.Context()
	var (
		summaries []*models.ReconcileSummary
		errs      []error
	)
	for _, category := range categories {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		summary, err := engine.ReconcileCategory(ctx, category.Slug, strategies)
		summaries = append(summaries, summary)
		if err != nil {
			rt.Logger.Error("refresh failed", slog.String("category", category.Slug), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	cli.PrintReconcileSummary(os.Stdout, summaries)

	if err := rt.RebuildAggregate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
