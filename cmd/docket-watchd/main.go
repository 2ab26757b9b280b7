// docket-watchd runs the batch on a cron schedule. Runs that overlap
// are prevented by the same pid lock the one-shot binary takes, so a
// long OCR-heavy batch simply causes the next tick to skip.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron"

	"github.com/casetrack/docketwatch/internal/batch"
	"github.com/casetrack/docketwatch/internal/common"
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
		spec       = flag.String("cron", "", "cron schedule (empty = config default)")
		configPath = flag.String("config", "", "optional yaml config overlay")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if *configPath != "" {
		if err := cfg.ApplyFile(*configPath); err != nil {
			logger.Error("config overlay failed", "path", *configPath, "error", err)
			os.Exit(2)
		}
	}
	if *spec != "" {
		cfg.Batch.CronSpec = *spec
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cron.New()
	err := c.AddFunc(cfg.Batch.CronSpec, func() {
		runOnce(ctx, cfg, logger)
	})
	if err != nil {
		logger.Error("invalid cron schedule", "spec", cfg.Batch.CronSpec, "error", err)
		os.Exit(2)
	}

	logger.Info("scheduler started", "spec", cfg.Batch.CronSpec)
	c.Start()
	<-ctx.Done()
	c.Stop()
	logger.Info("scheduler stopped")
}

func runOnce(ctx context.Context, cfg *common.Config, logger *slog.Logger) {
	gate := &batch.HealthGate{
		MinFreeMemory: cfg.Batch.MinFreeMemory,
		MaxCPUPercent: cfg.Batch.MaxCPUPercent,
		Logger:        logger,
	}
	if err := gate.Check(); err != nil {
		logger.Warn("tick skipped, host not healthy", "error", err)
		return
	}

	pidLock := lock.New(cfg.Docs.LockPath, logger)
	if err := pidLock.Acquire(); err != nil {
		logger.Warn("tick skipped, batch already running", "error", err)
		return
	}
	defer func() {
		if err := pidLock.Release(); err != nil {
			logger.Warn("lock release failed", "error", err)
		}
	}()

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		return
	}
	defer db.Close(logger)

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
	if cfg.Fetch.Username != "" {
		creds := fetch.Credentials{Username: cfg.Fetch.Username, Password: cfg.Fetch.Password}
		if err := fetcher.Login(ctx, creds); err != nil {
			logger.Error("court login failed", "error", err)
			return
		}
	}

	store := &fetch.Store{Root: cfg.Docs.Root}
	reg := registry.New(documents, logger)
	cascade := summarize.NewCascade(cases, events, documents, updates, gen, logger)
	processor := pipeline.NewProcessor(cases, events, documents, reg, fetcher, store, extractor, cascade, logger)

	runner := batch.NewRunner(events, processor, batch.Options{
		Workers:        cfg.Batch.Workers,
		Limit:          cfg.Batch.Limit,
		AttemptTimeout: cfg.Batch.AttemptTimeout,
		RetryDelay:     cfg.Batch.RetryDelay,
	}, logger)

	report, err := runner.Run(ctx)
	if err != nil {
		logger.Error("scheduled batch aborted", "error", err)
		return
	}
	logger.Info("scheduled batch finished",
		"selected", report.Selected, "succeeded", report.Succeeded, "failed", report.Failed)
}
