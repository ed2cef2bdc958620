package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aluiziolira/catalog-harvest/internal/cli"
	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/spf13/cobra"
)

var mirrorAll bool

var rootCmd = &cobra.Command{
	Use:          "mirror <category-slug> | --all",
	Short:        "Downloads product images and points the dataset at the local copies.",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().BoolVar(&mirrorAll, "all", false, "Mirror every category")
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

	categories, err := cli.Targets(rt.Config, args, mirrorAll)
	if err != nil {
		return err
	}
	engine, err := rt.Engine()
	if err != nil {
		return err
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
		summary, err := engine.MirrorCategory(ctx, category.Slug)
		summaries = append(summaries, summary)
		if err != nil {
			rt.Logger.Error("mirror failed", slog.String("category", category.Slug), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	cli.PrintReconcileSummary(os.Stdout, summaries)

	if err := rt.RebuildAggregate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
