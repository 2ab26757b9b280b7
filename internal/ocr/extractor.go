package ocr

import (
	"context"
	"log/slog"
	"time"

	"github.com/casetrack/docketwatch/constants"
	"github.com/casetrack/docketwatch/internal/llm"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit

	TessdataDir string
	PSM         int // page segmentation mode; default 1 (auto + OSD)
	OEM         int // 1 = LSTM; leave 0 to use default
}

// Result is the outcome of one extraction run. QualityOK is the
// quality gate: text below constants.UsableTextMin must never reach
// summarization.
type Result struct {
	Text      string // cleaned, normalized text
	RawText   string // pre-cleanup text (OCR output before the AI pass)
	Pages     int
	Method    string // "pdf-text" | "pdf-ocr"
	AICleaned bool
	QualityOK bool
	Duration  time.Duration
	Warnings  []string
}

type Extractor struct {
	cfg    Config
	runner Runner
	gen    llm.TextGenerator // optional; nil disables the AI cleanup pass
	logger *slog.Logger
}

// NewExtractor builds the hybrid extraction engine. gen may be nil;
// the AI cleanup pass is skipped without it.
func NewExtractor(cfg Config, gen llm.TextGenerator, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PSM <= 0 {
		cfg.PSM = 1
	}
	return &Extractor{cfg: cfg, runner: newExecRunner(logger), gen: gen, logger: logger}
}

// ExtractText runs the ordered strategy against a stored PDF:
//  1. embedded-text pass, accepted at >= constants.EmbeddedTextMin chars;
//  2. raster OCR pass with per-page preprocessing;
//  3. bounded AI cleanup of whatever text the prior passes produced.
//
// Each pass runs only when the previous one did not satisfy its bar.
func (e *Extractor) ExtractText(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	res := Result{Method: "pdf-text"}

	text, pages, warns, err := e.pdfToText(ctx, path)
	res.Warnings = append(res.Warnings, warns...)
	if err != nil {
		e.logger.Warn("embedded text pass failed, falling back to OCR", "path", path, "error", err)
		text = ""
	}
	if len(text) < constants.EmbeddedTextMin {
		e.logger.Debug("embedded text below bar, rasterizing",
			"path", path, "embedded_len", len(text))
		ocrText, ocrPages, ocrWarns, ocrErr := e.pdfToRasterOCR(ctx, path)
		res.Warnings = append(res.Warnings, ocrWarns...)
		if ocrErr != nil {
			if text == "" {
				res.Duration = time.Since(start)
				return res, ocrErr
			}
			// keep the thin embedded text rather than nothing
			e.logger.Warn("raster OCR failed, keeping embedded text",
				"path", path, "error", ocrErr)
		} else {
			text, pages = ocrText, ocrPages
			res.Method = "pdf-ocr"
		}
	}

	res.RawText = Normalize(text)
	res.Pages = pages

	cleaned := res.RawText
	if e.gen != nil && cleaned != "" {
		if out, cleanErr := e.aiCleanup(ctx, cleaned); cleanErr != nil {
			// recoverable: raw OCR text stands
			e.logger.Warn("ai cleanup pass failed, keeping raw text", "path", path, "error", cleanErr)
		} else if out != "" {
			cleaned = Normalize(out)
			res.AICleaned = true
		}
	}
	res.Text = cleaned
	res.QualityOK = len(res.Text) >= constants.UsableTextMin
	res.Duration = time.Since(start)

	e.logger.Info("text extraction finished",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"bytes", len(res.Text),
		"ai_cleaned", res.AICleaned,
		"quality_ok", res.QualityOK,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// aiCleanup submits a bounded excerpt for OCR-artifact correction. The
// full text is replaced only when the excerpt covered all of it;
// partial cleanup of a long document would splice corrected and
// uncorrected text.
func (e *Extractor) aiCleanup(ctx context.Context, text string) (string, error) {
	if len(text) > llm.CleanupBudget {
		return "", nil
	}
	out, err := e.gen.Generate(ctx, llm.GenerateRequest{
		Prompt:      llm.BuildCleanupPrompt(text),
		MaxTokens:   4096,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
