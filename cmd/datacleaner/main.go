// cmd/datacleaner/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-bi/pkg/cleaner"
	"github.com/David-Botos/retail-bi/pkg/config"
	"github.com/David-Botos/retail-bi/pkg/connector"
	"github.com/David-Botos/retail-bi/pkg/publish"
	"github.com/David-Botos/retail-bi/pkg/report"
)

func main() {
	os.Exit(run())
}

func run() int {
	file := flag.String("file", "", "Clean a single file of the source directory instead of the whole batch")
	doPublish := flag.Bool("publish", false, "Load the cleaned files into PostgreSQL")
	envFile := flag.String("env", "", "Path to an env file to load before reading the environment")
	flag.Parse()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.LoadConfig(envFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := cleaner.OptionsFromConfig(cfg.Cleaner)
	if err != nil {
		logger.Error("Invalid cleaner options", zap.Error(err))
		return 1
	}
	dc, err := cleaner.NewDataCleaner(opts, logger.Named("cleaner"))
	if err != nil {
		logger.Error("Failed to create cleaner", zap.Error(err))
		return 1
	}
	dc.WithReportExporter(report.NewExporter(logger))

	factory := connector.NewConnectorFactory(cfg, logger)
	auditDB, err := factory.OpenAuditStore(ctx)
	if err != nil {
		logger.Warn("Audit store unavailable; repairs will not be recorded", zap.Error(err))
	} else if auditDB != nil {
		defer auditDB.Close()
		recorder, err := cleaner.NewSQLAuditRecorder(ctx, auditDB, logger)
		if err != nil {
			logger.Warn("Failed to prepare audit table; repairs will not be recorded", zap.Error(err))
		} else {
			dc.WithAuditRecorder(recorder)
		}
	}

	var results []*cleaner.Result
	if *file != "" {
		res, err := dc.ProcessFile(ctx, *file)
		if err != nil {
			logger.Error("File could not be cleaned", zap.String("file", *file), zap.Error(err))
			return 1
		}
		printResult(res)
		results = append(results, res)
	} else {
		summary, err := dc.ProcessAll(ctx)
		if err != nil {
			if errors.Is(err, cleaner.ErrDirectoryNotFound) || errors.Is(err, cleaner.ErrNoValidFiles) {
				logger.Error("Nothing to clean", zap.Error(err))
			} else {
				logger.Error("Batch aborted", zap.Error(err))
			}
			if summary != nil {
				printSummary(summary)
			}
			return 1
		}
		printSummary(summary)
		results = summary.Results
	}

	if !*doPublish {
		return 0
	}
	if err := publishResults(ctx, factory, cfg, results, logger); err != nil {
		logger.Error("Publish failed", zap.Error(err))
		return 1
	}
	return 0
}

func publishResults(ctx context.Context, factory *connector.ConnectorFactory, cfg *config.Config, results []*cleaner.Result, logger *zap.Logger) error {
	pg, err := factory.CreatePostgresConnector(ctx)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.Validate(ctx); err != nil {
		return err
	}

	summary, err := publish.NewManager(pg, publish.OptionsFromConfig(cfg.Publish), logger).Publish(ctx, results)
	if summary != nil {
		fmt.Println("\n--- Publicación en PostgreSQL ---")
		fmt.Printf("Esquema: %s\n", summary.Schema)
		fmt.Printf("Tablas cargadas: %d\n", summary.Succeeded)
		fmt.Printf("Tablas fallidas: %d\n", summary.Failed)
		fmt.Printf("Filas insertadas: %d\n", summary.TotalRows)
		for _, r := range summary.Results {
			if !r.Success {
				for _, e := range r.Errors {
					fmt.Printf(" - %s: %s\n", r.SourceFile, e.String())
				}
			}
		}
		fmt.Printf("Duración: %s\n", summary.Duration.Round(time.Millisecond))
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed to publish", summary.Failed, summary.Failed+summary.Succeeded)
	}
	return nil
}

func printResult(res *cleaner.Result) {
	fmt.Println("\n--- Archivo procesado ---")
	fmt.Printf("Archivo: %s\n", res.SourceFile)
	fmt.Printf("Salida: %s\n", res.OutputPath)
	fmt.Printf("Dimensiones: %d filas x %d columnas\n", res.FinalShape.Rows, res.FinalShape.Cols)
	fmt.Printf("Filas problemáticas: %d\n", res.ProblemRows)
	fmt.Printf("Columnas problemáticas: %d\n", res.ProblemColumns)
	for _, path := range res.Reports {
		fmt.Printf(" - reporte: %s\n", path)
	}
	fmt.Printf("Duración: %s\n", res.Duration.Round(time.Millisecond))
}

func printSummary(s *cleaner.BatchSummary) {
	fmt.Println("\n--- Limpieza de datos ---")
	fmt.Printf("Archivos procesados: %d\n", s.Attempted)
	fmt.Printf("Correctos: %d\n", s.Succeeded)
	fmt.Printf("Fallidos: %d\n", s.Failed)
	fmt.Printf("Filas totales: %d\n", s.TotalRows)
	fmt.Printf("Filas problemáticas: %d\n", s.TotalProblemRows)
	for _, f := range s.Failures {
		fmt.Printf(" - %s\n", f.Error())
	}
	fmt.Printf("Duración: %s\n", s.Duration.Round(time.Millisecond))
}
