package ingest

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"unicode/utf8"
)

// Folder is a directory of receipts. Its name is the folder number submitted
// with every expense inside it.
type Folder struct {
	Name string
	Path string
}

// startsWithDigit accepts ASCII and full-width leading digits.
func startsWithDigit(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return (r >= '0' && r <= '9') || (r >= '０' && r <= '９')
}

// DiscoverFolders lists the folders under root to process, sorted by name.
// With a non-empty allow-list only the named folders are returned, otherwise
// every folder whose name starts with a digit.
func DiscoverFolders(root string, allow []string) ([]Folder, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: root directory: %w", ErrConfig, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: root %s is not a directory", ErrConfig, root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: reading root directory: %w", ErrConfig, err)
	}

	var folders []Folder
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if len(allow) > 0 {
			if !slices.Contains(allow, name) {
				continue
			}
		} else if !startsWithDigit(name) {
			continue
		}
		folders = append(folders, Folder{Name: name, Path: filepath.Join(root, name)})
	}

	if len(folders) == 0 {
		if len(allow) > 0 {
			return nil, fmt.Errorf("%w: none of the folders %v found in %s", ErrConfig, allow, root)
		}
		return nil, fmt.Errorf("%w: no digit-prefixed folders found in %s", ErrConfig, root)
	}

	slices.SortFunc(folders, func(a, b Folder) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return folders, nil
}

// EligibleFiles lists the files in folder with an accepted extension, sorted by name.
func EligibleFiles(folder Folder) ([]ReceiptFile, error) {
	entries, err := os.ReadDir(folder.Path)
	if err != nil {
		return nil, fmt.Errorf("reading folder %s: %w", folder.Name, err)
	}

	var files []ReceiptFile
	for _, e := range entries {
		if !e.Type().IsRegular() || !Accepted(e.Name()) {
			continue
		}
		files = append(files, NewReceiptFile(folder.Name, filepath.Join(folder.Path, e.Name())))
	}

	slices.SortFunc(files, func(a, b ReceiptFile) int {
		return cmp.Compare(a.Name(), b.Name())
	})
	return files, nil
}

// Batch runs the Ingester over folders of receipts, one file at a time.
type Batch struct {
	ingester *Ingester
	poller   *Poller
	timing   Timing
}

// NewBatch creates a Batch.
func NewBatch(ingester *Ingester, poller *Poller, cfg Config) *Batch {
	return &Batch{
		ingester: ingester,
		poller:   poller,
		timing:   cfg.Timing,
	}
}

// Run processes folders in order and returns the aggregated report. An
// interrupt through ctx is honored between files; the report then covers
// everything processed up to that point, as it does after a fault.
func (b *Batch) Run(ctx context.Context, folders []Folder) (report RunReport) {
	var current *FolderResult
	defer func() {
		if r := recover(); r != nil {
			if current != nil {
				report.Add(*current)
			}
			report.Fault = fmt.Errorf("unexpected fault: %v", r)
			slog.Error("Batch aborted", "error", report.Fault)
		}
	}()

	for _, folder := range folders {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		current = &FolderResult{Folder: folder.Name}
		interrupted := b.runFolder(ctx, folder, current)
		report.Add(*current)
		current = nil
		if interrupted {
			report.Interrupted = true
			break
		}
	}

	if report.Interrupted {
		slog.Warn("Batch interrupted", "success", report.Total.Success, "failed", report.Total.Failed, "skipped", report.Total.Skipped)
	}
	return report
}

// runFolder records into result as it goes and reports whether it stopped on
// an interrupt.
func (b *Batch) runFolder(ctx context.Context, folder Folder, result *FolderResult) bool {
	slog.Info("Processing folder", "folder", folder.Name)

	files, err := EligibleFiles(folder)
	if err != nil {
		slog.Error("Failed to list folder", "folder", folder.Name, "error", err)
	}
	if len(files) == 0 {
		slog.Info("No receipt files in folder", "folder", folder.Name)
		result.Tally.Skipped = 1
		return false
	}

	slog.Info("Receipts found", "folder", folder.Name, "count", len(files))
	for i, file := range files {
		if ctx.Err() != nil {
			return true
		}

		slog.Info("Processing receipt", "folder", folder.Name, "index", i+1, "total", len(files), "file", file.Name())
		outcome := b.processFile(ctx, file)
		result.Tally.Record(outcome)
		result.Outcomes = append(result.Outcomes, outcome)

		if err := b.poller.Pause(ctx, b.timing.BetweenFiles); err != nil && i < len(files)-1 {
			return true
		}
	}

	slog.Info("Folder done", "folder", folder.Name, "success", result.Tally.Success, "failed", result.Tally.Failed, "skipped", result.Tally.Skipped)
	return false
}

// processFile clears the form and ingests file. A fault in either step fails
// only this file.
func (b *Batch) processFile(ctx context.Context, file ReceiptFile) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Kind: Failed, File: file, Err: fmt.Errorf("%w: %v", ErrDriver, r)}
			slog.Error("Receipt failed", "file", file.Name(), "error", out.Err)
		}
	}()

	b.ingester.ClearForm(ctx)
	return b.ingester.Ingest(ctx, file)
}
