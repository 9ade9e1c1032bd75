package ingest

import (
	"context"
	"fmt"
	"log/slog"
)

// Preparer readies a local file for upload. It returns the path to upload and a
// cleanup func that must be called once the file has been handled.
type Preparer interface {
	Prepare(file ReceiptFile) (string, func(), error)
}

// passthrough uploads files as they are
type passthrough struct{}

func (passthrough) Prepare(file ReceiptFile) (string, func(), error) {
	return file.Path, func() {}, nil
}

// Ingester drives one file at a time through the expense form:
// upload, wait for analysis, check for duplicates, submit.
type Ingester struct {
	driver   Driver
	poller   *Poller
	preparer Preparer
	index    *ExistingIndex
	form     ExpenseForm
	timing   Timing
	strict   bool
}

// NewIngester creates an Ingester that uploads files unchanged.
func NewIngester(driver Driver, poller *Poller, index *ExistingIndex, cfg Config) *Ingester {
	return NewIngesterWithPreparer(driver, poller, passthrough{}, index, cfg)
}

// NewIngesterWithPreparer creates an Ingester that runs every file through preparer first.
func NewIngesterWithPreparer(driver Driver, poller *Poller, preparer Preparer, index *ExistingIndex, cfg Config) *Ingester {
	return &Ingester{
		driver:   driver,
		poller:   poller,
		preparer: preparer,
		index:    index,
		form:     cfg.UI.Form,
		timing:   cfg.Timing,
		strict:   cfg.StrictAnalysis,
	}
}

// Ingest runs file through the form and classifies the result. It never
// returns an error: every fault becomes a Failed outcome.
//
// Cancellation of ctx is ignored once a file has started.
func (in *Ingester) Ingest(ctx context.Context, file ReceiptFile) Outcome {
	ctx = context.WithoutCancel(ctx)
	out := Outcome{File: file}

	func() {
		defer func() {
			if r := recover(); r != nil {
				out.Kind = Failed
				out.Err = fmt.Errorf("%w: %v", ErrDriver, r)
			}
		}()
		in.run(ctx, &out)
	}()

	switch out.Kind {
	case Registered:
		slog.Info("Receipt registered", "file", file.Name(), "date", out.Key.Date, "amount", out.Key.Amount, "acknowledged", out.AckObserved)
	case Skipped:
		slog.Info("Receipt already registered, skipped", "file", file.Name(), "date", out.Key.Date, "amount", out.Key.Amount, "remaining", in.index.Remaining(out.Key))
	default:
		slog.Error("Receipt failed", "file", file.Name(), "error", out.Err)
	}
	return out
}

func (in *Ingester) run(ctx context.Context, out *Outcome) {
	fail := func(err error) {
		out.Kind = Failed
		out.Err = err
	}

	uploadPath, cleanup, err := in.preparer.Prepare(out.File)
	if err != nil {
		fail(fmt.Errorf("%w: %w", ErrPreflight, err))
		return
	}
	defer cleanup()

	slog.Info("Uploading receipt", "file", out.File.Name(), "folder", out.File.Folder)
	if err := in.driver.UploadFile(ctx, in.form.FileInput, uploadPath); err != nil {
		fail(fmt.Errorf("%w: uploading file: %w", ErrDriver, err))
		return
	}

	date, amount, done, err := in.awaitAnalysis(ctx)
	if err != nil {
		fail(fmt.Errorf("%w: waiting for analysis: %w", ErrDriver, err))
		return
	}
	out.Key = NewRecordKey(date, amount)

	if !done {
		out.AnalysisTimedOut = true
		slog.Warn("Analysis did not finish, continuing with current values",
			"file", out.File.Name(),
			"date", out.Key.Date,
			"amount", out.Key.Amount,
			"error", ErrAnalysisTimeout,
		)
		if in.strict && out.Key.Amount == "" {
			fail(fmt.Errorf("%w: amount is empty", ErrAnalysisTimeout))
			return
		}
	}

	if out.Key.Amount != "" && in.index.Consume(out.Key) {
		out.Kind = Skipped
		return
	}

	if err := in.submit(ctx, out); err != nil {
		fail(err)
		return
	}
	out.Kind = Registered
}

// awaitAnalysis polls until the analysis indicator is gone and the amount field
// holds a value. On timeout it returns whatever the fields currently hold.
func (in *Ingester) awaitAnalysis(ctx context.Context) (date, amount string, done bool, err error) {
	done, err = in.poller.Until(ctx, in.timing.PollInterval, in.timing.AnalysisTimeout, func() bool {
		busy, err := in.driver.Has(ctx, in.form.Analyzing)
		if err != nil || busy {
			return false
		}
		v, err := in.driver.Value(ctx, in.form.Amount)
		if err != nil || v == "" {
			return false
		}
		amount = v
		date, _ = in.driver.Value(ctx, in.form.Date)
		return true
	})
	if err != nil || done {
		return date, amount, done, err
	}

	amount, _ = in.driver.Value(ctx, in.form.Amount)
	date, _ = in.driver.Value(ctx, in.form.Date)
	return date, amount, false, nil
}

func (in *Ingester) submit(ctx context.Context, out *Outcome) error {
	if ok, err := in.driver.Has(ctx, in.form.Folder); err == nil && ok {
		if err := in.driver.Fill(ctx, in.form.Folder, out.File.Folder); err != nil {
			return fmt.Errorf("%w: filling folder number: %w", ErrDriver, err)
		}
	}

	ok, err := in.driver.Has(ctx, in.form.Submit)
	if err != nil {
		return fmt.Errorf("%w: looking up submit control: %w", ErrDriver, err)
	}
	if !ok {
		return fmt.Errorf("%w: submit control not found", ErrDriver)
	}
	if err := in.driver.Click(ctx, in.form.Submit); err != nil {
		return fmt.Errorf("%w: clicking submit: %w", ErrDriver, err)
	}

	acked, err := in.poller.Until(ctx, in.timing.PollInterval, in.timing.AckTimeout, func() bool {
		ok, err := in.driver.Has(ctx, in.form.Ack)
		return err == nil && ok
	})
	if err != nil {
		return fmt.Errorf("%w: waiting for acknowledgment: %w", ErrDriver, err)
	}
	out.AckObserved = acked
	if !acked {
		slog.Warn("Submission not acknowledged, assuming it went through",
			"file", out.File.Name(),
			"error", ErrSubmissionAckTimeout,
		)
	}

	return in.poller.Pause(ctx, in.timing.AfterSubmit)
}

// ClearForm resets the form before the next file. Failures are ignored: a form
// without a clear control is already empty.
func (in *Ingester) ClearForm(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	ok, err := in.driver.Has(ctx, in.form.Clear)
	if err != nil || !ok {
		return
	}
	if err := in.driver.Click(ctx, in.form.Clear); err != nil {
		slog.Debug("Failed to clear form", "error", err)
		return
	}
	_ = in.poller.Pause(ctx, in.timing.ClearPause)
}
