package ingest

import (
	"context"
	"fmt"
	"log/slog"
)

// Run signs in, indexes the records already registered, and ingests every
// eligible file under folders. Only ErrAuth is returned as an error; all other
// problems, including an unexpected fault, are reflected in the RunReport.
func Run(ctx context.Context, driver Driver, preparer Preparer, clock Clock, cfg Config, folders []Folder) (report RunReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			report = RunReport{Fault: fmt.Errorf("unexpected fault: %v", r)}
			err = nil
			slog.Error("Run aborted before the batch", "error", report.Fault)
		}
	}()

	poller := NewPoller(clock)
	session := NewSession(driver, poller, cfg)

	if err := session.Login(ctx); err != nil {
		if ctx.Err() != nil {
			return RunReport{Interrupted: true}, nil
		}
		return RunReport{}, err
	}

	index := NewReconciler(driver, poller, cfg).BuildIndex(ctx)

	if err := session.OpenForm(ctx); err != nil {
		// Every file will then fail on its own and be counted.
		slog.Error("Failed to open expense form", "error", err)
	}

	ingester := NewIngesterWithPreparer(driver, poller, preparer, index, cfg)
	return NewBatch(ingester, poller, cfg).Run(ctx, folders), nil
}
