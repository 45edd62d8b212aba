package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joelkehle/efficacylens/internal/doctext"
	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/joelkehle/efficacylens/internal/render"
	"github.com/joelkehle/efficacylens/internal/store"
)

func (a *app) pipeline() (*efficacylens.Pipeline, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	caller, err := efficacylens.NewCaller(a.cfg.LLM.Provider, a.cfg.CallerOptions())
	if err != nil {
		return nil, err
	}
	table, err := a.cfg.SynonymTable()
	if err != nil {
		return nil, err
	}
	exec := efficacylens.NewStageExecutor(caller, a.cfg.LLM.Model, a.logger)
	runner := efficacylens.NewLLMStageRunner(exec, efficacylens.NewProfileExtractor(exec, a.logger))
	return efficacylens.NewPipeline(
		doctext.New(a.logger.Named("doctext")),
		runner,
		efficacylens.WithMatcher(efficacylens.NewMatcher(table)),
		efficacylens.WithModel(a.cfg.LLM.Model),
		efficacylens.WithLogger(a.logger.Named("pipeline")),
	), nil
}

// runStore opens run history, or returns nil when no store path is set.
func (a *app) runStore() (*store.SQLiteStore, error) {
	path := a.cfg.Store.Path
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return store.Open(path, a.logger.Named("store"))
}

func (a *app) pdfRenderer() *render.ChromiumPDFRenderer {
	return render.NewChromiumPDFRenderer(a.cfg.Render.ChromePath, a.cfg.Render.Timeout)
}
