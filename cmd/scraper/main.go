package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aluiziolira/catalog-harvest/internal/cli"
	"github.com/spf13/cobra"
)

var (
	crawlAll   bool
	crawlQuick bool
)

var rootCmd = &cobra.Command{
	Use:   "scraper [<category-slug> | --all] [--quick]",
	Short: "Crawls catalog categories into the product dataset.",
	Long: "Crawls the listing pages of a category, enriches each product from its detail page " +
		"and merges the result into the stored category document. Without arguments it " +
		"writes categories.json and prints this help.",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().BoolVar(&crawlAll, "all", false, "Crawl every category")
	rootCmd.Flags().BoolVar(&crawlQuick, "quick", false, "Listing pages only, no detail enrichment")
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

	if len(args) == 0 && !crawlAll {
		if err := rt.Store.WriteCategories(rt.Config.Categories()); err != nil {
			return fmt.Errorf("write categories: %w", err)
		}
		rt.Logger.Info("categories written", slog.String("path", rt.Store.CategoriesPath()))
		return cmd.Help()
	}

	categories, err := cli.Targets(rt.Config, args, crawlAll)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt.Logger.Info("starting crawl",
		slog.String("base_url", rt.Config.BaseURL),
		slog.Int("categories", len(categories)),
		slog.Bool("quick", crawlQuick),
	)

	results, crawlErr := rt.Crawler().CrawlAll(ctx, categories, crawlQuick)
	cli.PrintCrawlSummary(os.Stdout, results)

	if err := rt.RebuildAggregate(); err != nil {
		return err
	}
	if crawlErr == nil {
		return nil
	}
	// With --all an aborted category is reported and the others stand.
	if crawlAll && ctx.Err() == nil {
		rt.Logger.Warn("some categories were aborted", slog.Any("error", crawlErr))
		return nil
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return crawlErr
}
