package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/feinschmecker/internal/importer"
	"github.com/starford/feinschmecker/internal/mcpserver"
)

// RunImport loads the dataset at file and creates its recipes in the
// current graph. Each created recipe is published like any other write,
// so running servers and workers pick the import up.
func RunImport(ctx context.Context, file string, opts ...Option) (importer.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return importer.Report{}, err
	}
	logger := app.newLogger()

	records, err := importer.LoadFile(file)
	if err != nil {
		return importer.Report{}, err
	}
	logger.Info("importer: dataset loaded",
		slog.String("file", file),
		slog.Int("records", len(records)))

	s, err := openStack(ctx, app.config, logger)
	if err != nil {
		return importer.Report{}, err
	}
	defer s.Close()

	im := importer.New(s.engine(), importer.WithLogger(logger))
	rep, err := im.Import(ctx, records)
	if err != nil {
		return rep, fmt.Errorf("import %s: %w", file, err)
	}
	return rep, nil
}

// RunMCP serves the recipe tools over stdio. Logs go to the configured log
// output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	s, err := openStack(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := mcpserver.New(s.recipes(), s.engine(), s.pageLimits())
	logger.Info("mcp: serving on stdio")
	return srv.ServeStdio()
}
