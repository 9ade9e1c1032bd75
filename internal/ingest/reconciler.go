package ingest

import (
	"context"
	"fmt"
	"log/slog"
)

// Reconciler reads the records the target system already holds.
type Reconciler struct {
	driver  Driver
	poller  *Poller
	listing Listing
	url     string
	timing  Timing
}

// NewReconciler creates a Reconciler for the listing view of cfg.
func NewReconciler(driver Driver, poller *Poller, cfg Config) *Reconciler {
	return &Reconciler{
		driver:  driver,
		poller:  poller,
		listing: cfg.UI.Listing,
		url:     cfg.URL(cfg.UI.Listing.Path),
		timing:  cfg.Timing,
	}
}

// BuildIndex counts the existing records by key. A listing that cannot be read
// yields an empty index so the run continues without duplicate suppression.
func (r *Reconciler) BuildIndex(ctx context.Context) *ExistingIndex {
	index := NewExistingIndex()

	rows, err := r.readListing(ctx)
	if err != nil {
		slog.Warn("Failed to read existing records, duplicate suppression disabled",
			"url", r.url,
			"error", fmt.Errorf("%w: %w", ErrReconciliation, err),
		)
		return index
	}

	for _, cells := range rows {
		if len(cells) <= r.listing.DateColumn || len(cells) <= r.listing.AmountColumn {
			continue
		}
		index.Add(NewRecordKey(cells[r.listing.DateColumn], cells[r.listing.AmountColumn]))
	}

	slog.Info("Existing records indexed", "rows", len(rows), "keys", index.Keys(), "records", index.Total())
	return index
}

func (r *Reconciler) readListing(ctx context.Context) ([][]string, error) {
	if err := r.driver.Navigate(ctx, r.url); err != nil {
		return nil, fmt.Errorf("navigating to listing: %w", err)
	}

	// An empty listing is valid, so running out of time here is not an error.
	rowLocator := Locator{Selector: r.listing.RowSelector}
	if _, err := r.poller.Until(ctx, r.timing.PollInterval, r.timing.ListingWait, func() bool {
		ok, err := r.driver.Has(ctx, rowLocator)
		return err == nil && ok
	}); err != nil {
		return nil, fmt.Errorf("waiting for listing rows: %w", err)
	}

	rows, err := r.driver.ReadRows(ctx, r.listing.RowSelector)
	if err != nil {
		return nil, fmt.Errorf("reading listing rows: %w", err)
	}
	return rows, nil
}
