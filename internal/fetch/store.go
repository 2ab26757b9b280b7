package fetch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/natefinch/atomic"
)

// Store writes fetched document bytes under a root directory and
// hands back the repo-relative path recorded in the registry.
type Store struct {
	Root string
}

var reUnsafePath = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Save writes the bytes atomically to <root>/cases/<caseID>/<docID><ext>
// and returns the path relative to root. Partial files never become
// visible at the final path.
func (s *Store) Save(caseID, sourceDocID string, data []byte, ext string) (string, error) {
	if s.Root == "" {
		return "", fmt.Errorf("document store root not configured")
	}
	if ext == "" {
		ext = ".pdf"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	rel := filepath.Join("cases", sanitize(caseID), sanitize(sourceDocID)+ext)
	abs := filepath.Join(s.Root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}
	if err := atomic.WriteFile(abs, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return rel, nil
}

// Abs resolves a registry-recorded relative path against the root.
func (s *Store) Abs(rel string) string {
	return filepath.Join(s.Root, rel)
}

func sanitize(part string) string {
	part = reUnsafePath.ReplaceAllString(part, "_")
	if part == "" {
		part = "_"
	}
	return part
}
