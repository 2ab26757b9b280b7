// runextract runs the hybrid text extraction engine against one PDF
// and prints the result, for tuning OCR settings without touching the
// database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/casetrack/docketwatch/internal/common"
	"github.com/casetrack/docketwatch/internal/llm"
	"github.com/casetrack/docketwatch/internal/llm/openai"
	"github.com/casetrack/docketwatch/internal/ocr"
)

func main() {
	_ = godotenv.Load()

	var (
		path    = flag.String("pdf", "", "path to the PDF to extract (required)")
		raw     = flag.Bool("raw", false, "print raw text instead of cleaned")
		cleanup = flag.Bool("cleanup", false, "run the AI cleanup pass (needs OPENAI_API_KEY)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *path == "" {
		logger.Error("missing -pdf")
		flag.Usage()
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	var gen llm.TextGenerator
	if *cleanup {
		gen = openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, logger)
	}

	extractor := ocr.NewExtractor(ocr.Config{
		Pdftotext:   cfg.OCR.Pdftotext,
		Pdftoppm:    cfg.OCR.Pdftoppm,
		Tesseract:   cfg.OCR.Tesseract,
		TessdataDir: cfg.OCR.TessdataDir,
		DPI:         cfg.OCR.DPI,
		MaxPages:    cfg.OCR.MaxPages,
		PSM:         cfg.OCR.PSM,
	}, gen, logger)

	res, err := extractor.ExtractText(context.Background(), *path)
	if err != nil {
		logger.Error("extraction failed", "pdf", *path, "error", err)
		os.Exit(1)
	}

	logger.Info("extraction finished",
		"method", res.Method, "pages", res.Pages, "chars", len(res.Text),
		"quality_ok", res.QualityOK, "ai_cleaned", res.AICleaned,
		"duration", res.Duration.Round(time.Millisecond), "warnings", len(res.Warnings))
	for _, w := range res.Warnings {
		logger.Warn("extraction warning", "warning", w)
	}

	if *raw {
		fmt.Println(res.RawText)
		return
	}
	fmt.Println(res.Text)
}
