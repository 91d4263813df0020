// Package main wires together the pagelift extraction binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/internal/extract"
	"github.com/pagelift/pagelift/internal/logging"
	"github.com/pagelift/pagelift/internal/pipeline"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	document := flag.String("document", "", "Path to the source PDF document")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	code := run(*document, cfg, logger)

	if syncErr := logger.Sync(); syncErr != nil {
		fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
	}
	os.Exit(code)
}

// run executes one extraction end to end and maps the result onto an exit
// code: 0 for a completed run (exhausted chunks included, they surface in
// the aggregate summary), 1 for fatal configuration or partition errors,
// 2 for usage errors.
func run(document string, cfg config.Config, logger *zap.Logger) int {
	if document == "" {
		fmt.Fprintln(os.Stderr, "usage: pagelift -document <file.pdf> [-config <file>]")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.Build(ctx, cfg, pipeline.Options{}, logger)
	if err != nil {
		logger.Error("pipeline build failed", zap.Error(err))
		return 1
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			logger.Warn("pipeline close failed", zap.Error(closeErr))
		}
	}()

	result, err := p.Run(ctx, document)
	if err != nil {
		logger.Error("extraction run failed", zap.Error(err))
		return 1
	}

	failed := 0
	for _, summary := range result.PerChunkSummary {
		if summary.Status != extract.ChunkStatusSuccess {
			failed++
		}
	}
	if failed > 0 {
		logger.Warn("run completed with exhausted chunks",
			zap.Int("failed_chunks", failed),
			zap.Int("total_records", result.TotalRecords),
		)
	}
	return 0
}
