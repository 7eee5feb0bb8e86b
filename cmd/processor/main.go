package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"ansetl/internal/config"
	"ansetl/internal/dataprocessing"
	"ansetl/internal/files"
	"ansetl/internal/infrastructure"
)

func main() {
	inDir := flag.String("in", "", "input directory with raw registry files and accounting archives (defaults to configured raw dir)")
	outDir := flag.String("out", "", "output directory for final artifacts (defaults to configured processed dir)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	if *inDir == "" {
		*inDir = cfg.Paths.RawDir
	}
	if *outDir == "" {
		*outDir = cfg.Paths.ProcessedDir
	}

	if err := cfg.EnsureDirectories(); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	ctx := infrastructure.ContextWithRunID(context.Background())

	logger.InfoContext(ctx, "Starting quarterly expense ETL",
		slog.String("input_dir", *inDir),
		slog.String("output_dir", *outDir))

	inputs, err := files.Discover(*inDir)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to discover input files",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	if len(inputs) == 0 {
		logger.WarnContext(ctx, "No input files found, nothing to do",
			slog.String("input_dir", *inDir))
		return
	}

	pipeline := dataprocessing.NewPipeline(logger, inputs, *outDir, cfg.Pipeline.Separator)
	if err := pipeline.Run(ctx); err != nil {
		logger.ErrorContext(ctx, "Pipeline failed",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.InfoContext(ctx, "Pipeline finished successfully")
}
