package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aluiziolira/catalog-harvest/config"
	"github.com/aluiziolira/catalog-harvest/internal/cli"
	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/aluiziolira/catalog-harvest/reconcile"
	"github.com/aluiziolira/catalog-harvest/scraper"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "refresh-chunk <start> <end> [chunkId]",
	Short: "Repairs image references of one slice of the chunk category.",
	Long: "Reconciles products [start,end) of CATALOG_CHUNK_CATEGORY with every strategy " +
		"and writes back only the products it changed. Run several over disjoint ranges " +
		"in parallel to split a large category.",
	Args:         cobra.RangeArgs(2, 3),
	SilenceUsage: true,
	RunE:         run,
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
	start, end, err := cli.ParseRange(args[0], args[1])
	if err != nil {
		return err
	}
	chunkID := uuid.NewString()[:8]
	if len(args) == 3 {
		chunkID = args[2]
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	category, err := cfg.CategoryBySlug(cfg.ChunkCategory)
	if err != nil {
		return err
	}

	rt, err := cli.New(cfg, scraper.WithTimeout(cfg.ChunkTimeout))
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.With(slog.String("chunk", chunkID))

	engine, err := rt.Engine()
	if err != nil {
		return err
	}

	summary, runErr := engine.ReconcileChunk(cmd.Context(), category.Slug, start, end, reconcile.All)
	summary.ChunkID = chunkID
	cli.PrintReconcileSummary(os.Stdout, []*models.ReconcileSummary{summary})

	return errors.Join(runErr, rt.RebuildAggregate())
}
