// docket-batch selects eligible case events and runs them through the
// processing pipeline with bounded parallelism, printing a JSON report
// and exiting nonzero when any event failed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/casetrack/docketwatch/internal/batch"
	"github.com/casetrack/docketwatch/internal/common"
	"github.com/casetrack/docketwatch/internal/export"
	"github.com/casetrack/docketwatch/internal/fetch"
	"github.com/casetrack/docketwatch/internal/llm/openai"
	"github.com/casetrack/docketwatch/internal/lock"
	"github.com/casetrack/docketwatch/internal/ocr"
	"github.com/casetrack/docketwatch/internal/pipeline"
	"github.com/casetrack/docketwatch/internal/registry"
	"github.com/casetrack/docketwatch/internal/repository"
	"github.com/casetrack/docketwatch/internal/summarize"
)

func main() {
	_ = godotenv.Load()

	var (
		limit      = flag.Int("limit", 0, "max events to select (0 = config default)")
		workers    = flag.Int("workers", 0, "worker pool size (0 = config default)")
		inmem      = flag.Bool("inmem", false, "use an in-memory sqlite database (testing)")
		force      = flag.Bool("force", false, "bypass the host health gate")
		exportPath = flag.String("export", "", "write storyworthy updates to this xlsx after the run")
		configPath = flag.String("config", "", "optional yaml config overlay")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	os.Exit(run(logger, *limit, *workers, *inmem, *force, *exportPath, *configPath))
}

func run(logger *slog.Logger, limit, workers int, inmem, force bool, exportPath, configPath string) int {
	cfg := common.LoadConfig()
	if configPath != "" {
		if err := cfg.ApplyFile(configPath); err != nil {
			logger.Error("config overlay failed", "path", configPath, "error", err)
			return 2
		}
	}
	if limit > 0 {
		cfg.Batch.Limit = limit
	}
	if workers > 0 {
		cfg.Batch.Workers = workers
	}
	if !inmem {
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid configuration", "error", err)
			return 2
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gate := &batch.HealthGate{
		MinFreeMemory: cfg.Batch.MinFreeMemory,
		MaxCPUPercent: cfg.Batch.MaxCPUPercent,
		Force:         force,
		Logger:        logger,
	}
	if err := gate.Check(); err != nil {
		logger.Error("host not healthy enough to start", "error", err)
		return 2
	}

	pidLock := lock.New(cfg.Docs.LockPath, logger)
	if err := pidLock.Acquire(); err != nil {
		logger.Error("another batch is running", "error", err)
		return 2
	}
	defer func() {
		if err := pidLock.Release(); err != nil {
			logger.Warn("lock release failed", "error", err)
		}
	}()

	var (
		db  *repository.DB
		err error
	)
	if inmem {
		db, err = repository.OpenSQLite(ctx, ":memory:", logger)
	} else {
		db, err = repository.Open(ctx, cfg.Database, logger)
	}
	if err != nil {
		logger.Error("database open failed", "error", err)
		return 2
	}
	defer db.Close(logger)

	deps := buildDeps(cfg, db, logger)
	if cfg.Fetch.Username != "" {
		creds := fetch.Credentials{Username: cfg.Fetch.Username, Password: cfg.Fetch.Password}
		if err := deps.fetcher.Login(ctx, creds); err != nil {
			logger.Error("court login failed", "error", err)
			return 2
		}
	}
	runner := batch.NewRunner(deps.events, deps.processor, batch.Options{
		Workers:        cfg.Batch.Workers,
		Limit:          cfg.Batch.Limit,
		AttemptTimeout: cfg.Batch.AttemptTimeout,
		RetryDelay:     cfg.Batch.RetryDelay,
	}, logger)

	report, err := runner.Run(ctx)
	if err != nil {
		logger.Error("batch aborted", "error", err)
		return 2
	}

	if exportPath != "" && report.Succeeded > 0 {
		exporter := export.NewExporter(deps.cases, deps.updates, logger)
		if _, err := exporter.WriteStoryworthy(ctx, exportPath, 0); err != nil {
			logger.Error("export failed", "path", exportPath, "error", err)
		}
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Error("report encode failed", "error", err)
		return 2
	}
	fmt.Println(string(out))
	return report.ExitCode()
}

type deps struct {
	cases     repository.CaseRepository
	events    repository.CaseEventRepository
	updates   repository.CaseUpdateRepository
	fetcher   *fetch.HTTPFetcher
	processor *pipeline.Processor
}

func buildDeps(cfg *common.Config, db *repository.DB, logger *slog.Logger) deps {
	cases := repository.NewCaseRepository(db, logger)
	events := repository.NewCaseEventRepository(db, logger)
	documents := repository.NewDocumentRepository(db, logger)
	updates := repository.NewCaseUpdateRepository(db, logger)

	gen := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	extractor := ocr.NewExtractor(ocr.Config{
		Pdftotext:   cfg.OCR.Pdftotext,
		Pdftoppm:    cfg.OCR.Pdftoppm,
		Tesseract:   cfg.OCR.Tesseract,
		TessdataDir: cfg.OCR.TessdataDir,
		DPI:         cfg.OCR.DPI,
		MaxPages:    cfg.OCR.MaxPages,
		PSM:         cfg.OCR.PSM,
	}, gen, logger)

	fetcher := fetch.NewHTTPFetcher(cfg.Fetch.LoginURL, logger, fetch.WithTimeout(cfg.Fetch.Timeout))
	store := &fetch.Store{Root: cfg.Docs.Root}
	reg := registry.New(documents, logger)
	cascade := summarize.NewCascade(cases, events, documents, updates, gen, logger)
	processor := pipeline.NewProcessor(cases, events, documents, reg, fetcher, store, extractor, cascade, logger)

	return deps{cases: cases, events: events, updates: updates, fetcher: fetcher, processor: processor}
}
