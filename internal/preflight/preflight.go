// Package preflight checks receipt files locally before they are uploaded and
// converts the formats the expense form does not take.
package preflight

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/zombor/expense-register/internal/ingest"
)

var _ ingest.Preparer = (*Preparer)(nil)

// Preparer checks and converts receipt files.
type Preparer struct {
	staging Storage
}

// New creates a Preparer that stages converted files in staging.
func New(staging Storage) *Preparer {
	return &Preparer{staging: staging}
}

// Prepare returns the path to upload for file. PDFs must open and have at
// least one page. HEIC/HEIF images are converted to PNG in the staging area;
// cleanup removes the converted copy. Other files are uploaded as is.
func (p *Preparer) Prepare(file ingest.ReceiptFile) (string, func(), error) {
	noop := func() {}
	path := file.Path

	info, err := os.Stat(path)
	if err != nil {
		return "", noop, fmt.Errorf("reading file: %w", err)
	}
	if info.Size() == 0 {
		return "", noop, fmt.Errorf("%s is empty", filepath.Base(path))
	}

	ext := file.Ext
	switch ext {
	case ".pdf":
		pages, err := pdfPages(path)
		if err != nil {
			return "", noop, err
		}
		if pages == 0 {
			return "", noop, fmt.Errorf("%s has no pages", filepath.Base(path))
		}
		return path, noop, nil
	case ".heic", ".heif", ".jpg", ".jpeg":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", noop, fmt.Errorf("reading file: %w", err)
		}
		if ext != ".heic" && ext != ".heif" && !isHEICFormat(data) {
			return path, noop, nil
		}
		return p.convertHEIC(path, data)
	default:
		return path, noop, nil
	}
}

func (p *Preparer) convertHEIC(path string, data []byte) (string, func(), error) {
	pngData, err := heicToPNG(data)
	if err != nil {
		return "", func() {}, err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	staged, err := p.staging.Save(fmt.Sprintf("%s_%s.png", uuid.NewString(), base), pngData)
	if err != nil {
		return "", func() {}, fmt.Errorf("staging converted image: %w", err)
	}
	slog.Info("Converted HEIC receipt to PNG", "file", filepath.Base(path), "staged", staged)

	cleanup := func() {
		if err := p.staging.Delete(staged); err != nil {
			slog.Warn("Failed to remove staged file", "path", staged, "error", err)
		}
	}
	return staged, cleanup, nil
}
