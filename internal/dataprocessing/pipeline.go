package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"

	"ansetl/internal/files"
)

// Pipeline wires the ETL stages together: workspace reset, master build,
// accounting extraction, then consolidation and export. Stages run
// sequentially and exchange whole in-memory tables; everything is
// recomputed from scratch on each run.
type Pipeline struct {
	logger    *slog.Logger
	inputs    []string
	outputDir string
	separator string
	workspace *files.Workspace
}

// NewPipeline creates a pipeline over the given input file list, writing
// final artifacts (and the scratch workspace) under outputDir.
func NewPipeline(logger *slog.Logger, inputs []string, outputDir, separator string) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if separator == "" {
		separator = ";"
	}
	return &Pipeline{
		logger:    logger,
		inputs:    inputs,
		outputDir: outputDir,
		separator: separator,
		workspace: files.NewWorkspace(outputDir, logger),
	}
}

// Run executes the full pipeline. Per-file and per-archive failures are
// absorbed by the stages; only workspace setup and final export I/O
// failures are returned.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.workspace.Reset(); err != nil {
		return fmt.Errorf("failed to prepare extraction workspace: %w", err)
	}

	master := BuildOperatorMaster(ctx, p.logger, p.inputs, p.separator)

	extractor := NewExtractor(p.logger, p.workspace, p.separator)
	expenses := extractor.ExtractExpenses(ctx, p.inputs)

	consolidator := NewConsolidator(p.logger, p.outputDir, p.workspace, rune(p.separator[0]))
	return consolidator.Run(ctx, expenses, master)
}
