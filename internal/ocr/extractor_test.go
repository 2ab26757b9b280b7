package ocr

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrack/docketwatch/constants"
	"github.com/casetrack/docketwatch/internal/llm"
)

// stubRunner scripts the external binaries. pdftoppm invocations write
// real page images so the preprocessing path runs end to end.
type stubRunner struct {
	embeddedText string
	ocrText      string
	pdftoppmErr  error
	pages        int

	calls []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, name)
	switch {
	case strings.Contains(name, "pdftotext"):
		return []byte(s.embeddedText), nil, nil
	case strings.Contains(name, "pdftoppm"):
		if s.pdftoppmErr != nil {
			return nil, []byte("render failed"), s.pdftoppmErr
		}
		prefix := args[len(args)-1]
		for i := 1; i <= s.pages; i++ {
			if err := writePageImage(fmt.Sprintf("%s-%d.png", prefix, i)); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case strings.Contains(name, "tesseract"):
		return []byte(s.ocrText), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %q", name)
}

func writePageImage(path string) error {
	img := image.NewGray(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	for x := 5; x < 35; x++ {
		for y := 18; y < 22; y++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

type stubGen struct {
	out   string
	err   error
	calls int
}

func (g *stubGen) Generate(_ context.Context, _ llm.GenerateRequest) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.out, nil
}

func newStubExtractor(r Runner, gen llm.TextGenerator) *Extractor {
	e := NewExtractor(Config{}, gen, nil)
	e.runner = r
	return e
}

func TestExtractEmbeddedTextAccepted(t *testing.T) {
	embedded := strings.Repeat("The defendant moves for summary judgment. ", 10)
	r := &stubRunner{embeddedText: embedded}
	e := newStubExtractor(r, nil)

	res, err := e.ExtractText(context.Background(), "/tmp/filing.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf-text", res.Method)
	assert.True(t, res.QualityOK)
	assert.Contains(t, res.Text, "summary judgment")
	// Accepted on the first pass; no rasterization.
	for _, c := range r.calls {
		assert.NotContains(t, c, "pdftoppm")
		assert.NotContains(t, c, "tesseract")
	}
}

func TestExtractFallsBackToOCR(t *testing.T) {
	ocrOut := strings.Repeat("ORDER granting the motion to compel discovery. ", 5)
	r := &stubRunner{embeddedText: "thin", ocrText: ocrOut, pages: 2}
	e := newStubExtractor(r, nil)

	res, err := e.ExtractText(context.Background(), "/tmp/scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf-ocr", res.Method)
	assert.Equal(t, 2, res.Pages)
	assert.True(t, res.QualityOK)
	assert.Contains(t, res.Text, "motion to compel")
}

func TestExtractQualityGateFailure(t *testing.T) {
	r := &stubRunner{embeddedText: "", ocrText: "illegible", pages: 1}
	e := newStubExtractor(r, nil)

	res, err := e.ExtractText(context.Background(), "/tmp/bad-scan.pdf")
	require.NoError(t, err)
	assert.False(t, res.QualityOK)
	assert.Less(t, len(res.Text), constants.UsableTextMin)
}

func TestExtractBothPassesFail(t *testing.T) {
	r := &stubRunner{embeddedText: "", pdftoppmErr: fmt.Errorf("pdftoppm exploded")}
	e := newStubExtractor(r, nil)

	_, err := e.ExtractText(context.Background(), "/tmp/corrupt.pdf")
	assert.Error(t, err)
}

func TestExtractAICleanupApplied(t *testing.T) {
	embedded := strings.Repeat("Th1s 0rder gr@nts the motion. ", 10)
	gen := &stubGen{out: strings.Repeat("This order grants the motion. ", 10)}
	r := &stubRunner{embeddedText: embedded}
	e := newStubExtractor(r, gen)

	res, err := e.ExtractText(context.Background(), "/tmp/noisy.pdf")
	require.NoError(t, err)
	assert.True(t, res.AICleaned)
	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, res.Text, "This order grants")
	assert.Contains(t, res.RawText, "Th1s 0rder")
}

func TestExtractAICleanupFailureKeepsRawText(t *testing.T) {
	embedded := strings.Repeat("The court denies the motion. ", 10)
	gen := &stubGen{err: fmt.Errorf("service down")}
	r := &stubRunner{embeddedText: embedded}
	e := newStubExtractor(r, gen)

	res, err := e.ExtractText(context.Background(), "/tmp/filing.pdf")
	require.NoError(t, err)
	assert.False(t, res.AICleaned)
	assert.True(t, res.QualityOK)
	assert.Contains(t, res.Text, "denies the motion")
}

func TestExtractAICleanupSkippedOverBudget(t *testing.T) {
	embedded := strings.Repeat("x", llm.CleanupBudget+100)
	gen := &stubGen{out: "should never be used"}
	r := &stubRunner{embeddedText: embedded}
	e := newStubExtractor(r, gen)

	res, err := e.ExtractText(context.Background(), "/tmp/long.pdf")
	require.NoError(t, err)
	assert.False(t, res.AICleaned)
	assert.Equal(t, 0, gen.calls)
}
