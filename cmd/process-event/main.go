// process-event runs one case event through the pipeline, for manual
// reprocessing and debugging. The event is resumed from whatever stage
// it last completed.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/casetrack/docketwatch/internal/common"
	"github.com/casetrack/docketwatch/internal/fetch"
	"github.com/casetrack/docketwatch/internal/llm/openai"
	"github.com/casetrack/docketwatch/internal/ocr"
	"github.com/casetrack/docketwatch/internal/pipeline"
	"github.com/casetrack/docketwatch/internal/registry"
	"github.com/casetrack/docketwatch/internal/repository"
	"github.com/casetrack/docketwatch/internal/summarize"
)

func main() {
	_ = godotenv.Load()

	var (
		eventID    = flag.String("event", "", "case event id to process (required)")
		configPath = flag.String("config", "", "optional yaml config overlay")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *eventID == "" {
		logger.Error("missing -event")
		flag.Usage()
		os.Exit(2)
	}
	id, err := uuid.Parse(*eventID)
	if err != nil {
		logger.Error("invalid event id", "event", *eventID, "error", err)
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if *configPath != "" {
		if err := cfg.ApplyFile(*configPath); err != nil {
			logger.Error("config overlay failed", "path", *configPath, "error", err)
			os.Exit(2)
		}
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(2)
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
			os.Exit(2)
		}
	}

	store := &fetch.Store{Root: cfg.Docs.Root}
	reg := registry.New(documents, logger)
	cascade := summarize.NewCascade(cases, events, documents, updates, gen, logger)
	processor := pipeline.NewProcessor(cases, events, documents, reg, fetcher, store, extractor, cascade, logger)

	if err := processor.ProcessCaseEvent(ctx, id); err != nil {
		logger.Error("event processing failed", "event_id", id, "error", err)
		os.Exit(1)
	}

	ev, err := events.GetByID(ctx, id)
	if err != nil {
		logger.Error("event re-read failed", "event_id", id, "error", err)
		os.Exit(1)
	}
	logger.Info("event processed", "event_id", id, "stage", ev.StageCompleted.String())
}
