package ingest

import "context"

// Locator names a UI element by CSS selector, optionally narrowed to elements
// whose text contains Text.
type Locator struct {
	Selector string
	Text     string
}

func (l Locator) String() string {
	if l.Text == "" {
		return l.Selector
	}
	return l.Selector + " (" + l.Text + ")"
}

// Driver defines the browser operations the ingestion flow relies on.
// Implementations must bound every call; none of them may block indefinitely.
type Driver interface {
	// Navigate loads url and waits for the page to settle
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the address of the loaded page
	CurrentURL(ctx context.Context) (string, error)

	// Has reports whether an element matching loc is present, without waiting
	Has(ctx context.Context, loc Locator) (bool, error)

	// Fill replaces the value of an input
	Fill(ctx context.Context, loc Locator, value string) error

	// Click clicks an element
	Click(ctx context.Context, loc Locator) error

	// Value reads the current value of an input
	Value(ctx context.Context, loc Locator) (string, error)

	// UploadFile sets the file of a file input
	UploadFile(ctx context.Context, loc Locator, path string) error

	// ReadRows returns the trimmed td/th texts of every element matching
	// rowSelector. An element without cells yields its own text as one cell.
	ReadRows(ctx context.Context, rowSelector string) ([][]string, error)

	// Close releases the browser session
	Close() error
}
