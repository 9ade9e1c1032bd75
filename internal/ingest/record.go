package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RecordKey identifies an expense record by its transaction date and amount.
// Both parts are compared as the strings the target application displays.
type RecordKey struct {
	Date   string
	Amount string
}

// NewRecordKey builds a key from raw field values, canonicalizing the amount.
func NewRecordKey(date, amount string) RecordKey {
	return RecordKey{
		Date:   strings.TrimSpace(date),
		Amount: CanonicalAmount(amount),
	}
}

// Comparable reports whether the key can take part in duplicate detection.
func (k RecordKey) Comparable() bool {
	return k.Date != "" && k.Amount != ""
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s", k.Date, k.Amount)
}

var amountReplacer = strings.NewReplacer("¥", "", "￥", "", "$", "", ",", "", "，", "")

// CanonicalAmount strips currency symbols and thousands separators so that a
// listing cell like "¥1,200" and a form value like "1200" produce the same key.
func CanonicalAmount(amount string) string {
	return strings.TrimSpace(amountReplacer.Replace(strings.TrimSpace(amount)))
}

// acceptedExtensions lists the file kinds the expense form takes. HEIC and HEIF
// are converted to PNG by the preparer before upload.
var acceptedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".pdf":  true,
	".heic": true,
	".heif": true,
}

// Accepted reports whether a file name has an extension the batch will ingest.
func Accepted(name string) bool {
	return acceptedExtensions[strings.ToLower(filepath.Ext(name))]
}

// ReceiptFile is one file queued for ingestion.
type ReceiptFile struct {
	Path   string
	Folder string // containing folder name, submitted as the folder number
	Ext    string // lower-cased, with leading dot
}

// NewReceiptFile describes the file at path inside the named folder.
func NewReceiptFile(folder, path string) ReceiptFile {
	return ReceiptFile{
		Path:   path,
		Folder: folder,
		Ext:    strings.ToLower(filepath.Ext(path)),
	}
}

// Name returns the base name of the file.
func (f ReceiptFile) Name() string {
	return filepath.Base(f.Path)
}

// OutcomeKind is the terminal classification of one file.
type OutcomeKind int

const (
	Registered OutcomeKind = iota
	Skipped
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Registered:
		return "registered"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of running one file through the Ingester.
type Outcome struct {
	Kind OutcomeKind
	File ReceiptFile
	Key  RecordKey

	// Err explains a Failed outcome.
	Err error

	// AnalysisTimedOut is set when analysis never signalled completion and the
	// flow continued with whatever values the form held.
	AnalysisTimedOut bool

	// AckObserved is set when the submission acknowledgment was seen.
	AckObserved bool
}

// Tally counts outcomes.
type Tally struct {
	Success int
	Failed  int
	Skipped int
}

// Record classifies one outcome into the tally.
func (t *Tally) Record(o Outcome) {
	switch o.Kind {
	case Registered:
		t.Success++
	case Skipped:
		t.Skipped++
	default:
		t.Failed++
	}
}

// Add accumulates another tally into t.
func (t *Tally) Add(other Tally) {
	t.Success += other.Success
	t.Failed += other.Failed
	t.Skipped += other.Skipped
}
