package main

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/term"

	"github.com/zombor/expense-register/internal/browser"
	"github.com/zombor/expense-register/internal/ingest"
	"github.com/zombor/expense-register/internal/preflight"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	os.Exit(run())
}

func run() int {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			return 0
		}
	}

	timing := ingest.DefaultTiming()
	browserDefaults := browser.DefaultConfig()

	fs := ff.NewFlagSet("expense-register")
	var (
		baseURL         = fs.StringLong("base-url", "http://localhost:3000", "Base address of the expense application")
		email           = fs.StringLong("email", "", "Login email")
		password        = fs.StringLong("password", "", "Login password (prompted when empty)")
		rootDir         = fs.StringLong("root", "./receipts", "Directory containing numbered receipt folders")
		folders         = fs.StringLong("folders", "", "Comma-separated folder names to process (default: every folder starting with a digit)")
		strictAnalysis  = fs.BoolLong("strict-analysis", "Fail files whose analysis timed out with an empty amount")
		pollInterval    = fs.DurationLong("poll-interval", timing.PollInterval, "Polling tick")
		analysisTimeout = fs.DurationLong("analysis-timeout", timing.AnalysisTimeout, "Maximum wait for receipt analysis")
		ackTimeout      = fs.DurationLong("ack-timeout", timing.AckTimeout, "Maximum wait for the registration acknowledgment")
		afterSubmit     = fs.DurationLong("after-submit", timing.AfterSubmit, "Pause after each registration")
		betweenFiles    = fs.DurationLong("between-files", timing.BetweenFiles, "Pause between files")
		clearPause      = fs.DurationLong("clear-pause", timing.ClearPause, "Pause after clearing the form")
		loginTimeout    = fs.DurationLong("login-timeout", timing.LoginTimeout, "Maximum wait for login to complete")
		listingWait     = fs.DurationLong("listing-wait", timing.ListingWait, "Maximum wait for the existing records listing")
		headless        = fs.BoolLong("headless", "Run Chrome without a window")
		slowMotion      = fs.DurationLong("slow-motion", browserDefaults.SlowMotion, "Delay before each browser input action")
		chromeBin       = fs.StringLong("chrome-bin", "", "Chrome binary (default: downloaded or system Chrome)")
		chromeURL       = fs.StringLong("chrome-url", "", "DevTools URL of a running Chrome to attach to")
		linger          = fs.DurationLong("linger", 5*time.Second, "Keep the browser open this long after the run")
		stagingPath     = fs.StringLong("staging", filepath.Join(os.TempDir(), "expense-register"), "Directory for converted receipt images")
		verbose         = fs.BoolLong("verbose", "Enable debug logging")
		_               = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_REGISTER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	runID := uuid.NewString()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).With("run_id", runID))

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if *email == "" && interactive {
		fmt.Fprint(os.Stderr, "Email: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		*email = strings.TrimSpace(line)
	}
	if *password == "" && *email != "" && interactive {
		fmt.Fprintf(os.Stderr, "Password for %s: ", *email)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			slog.Error("Failed to read password", "error", err)
			return 1
		}
		*password = strings.TrimSpace(string(raw))
	}

	cfg := ingest.Config{
		BaseURL:        *baseURL,
		Email:          *email,
		Password:       *password,
		RootDir:        *rootDir,
		Folders:        splitList(*folders),
		StrictAnalysis: *strictAnalysis,
		Timing: ingest.Timing{
			PollInterval:    *pollInterval,
			AnalysisTimeout: *analysisTimeout,
			AckTimeout:      *ackTimeout,
			AfterSubmit:     *afterSubmit,
			BetweenFiles:    *betweenFiles,
			ClearPause:      *clearPause,
			LoginTimeout:    *loginTimeout,
			ListingWait:     *listingWait,
		},
		UI: ingest.DefaultUI(),
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		return 1
	}

	targets, err := ingest.DiscoverFolders(cfg.RootDir, cfg.Folders)
	if err != nil {
		slog.Error("No folders to process", "root", cfg.RootDir, "error", err)
		return 1
	}
	names := make([]string, 0, len(targets))
	for _, f := range targets {
		names = append(names, f.Name)
	}
	slog.Info("Folders selected", "count", len(targets), "folders", names)

	staging, err := preflight.NewLocalStorage(*stagingPath)
	if err != nil {
		slog.Error("Failed to initialize staging", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer releaseOnInterrupt(ctx, stop)()

	bcfg := browserDefaults
	bcfg.Headless = *headless
	bcfg.SlowMotion = *slowMotion
	bcfg.Bin = *chromeBin
	bcfg.ControlURL = *chromeURL

	slog.Info("Starting browser...")
	driver, err := browser.Open(ctx, bcfg)
	if err != nil {
		slog.Error("Failed to start browser", "error", err)
		return 1
	}
	defer func() {
		if *linger > 0 && ctx.Err() == nil {
			slog.Info("Closing browser", "in", *linger)
			time.Sleep(*linger)
		}
		if err := driver.Close(); err != nil {
			slog.Warn("Failed to close browser", "error", err)
		}
	}()

	report, err := ingest.Run(ctx, driver, preflight.New(staging), ingest.RealClock(), cfg, targets)
	if err != nil {
		if errors.Is(err, ingest.ErrAuth) {
			slog.Error("Login failed", "error", err)
		} else {
			slog.Error("Run failed", "error", err)
		}
		return 1
	}

	report.RunID = runID
	if err := report.WriteSummary(os.Stdout); err != nil {
		slog.Error("Failed to print summary", "error", err)
	}
	return 0
}

// releaseOnInterrupt restores the default signal handling once ctx is done, so
// a second interrupt kills the process instead of waiting for the current file.
// The returned func ends the watch.
func releaseOnInterrupt(ctx context.Context, stop context.CancelFunc) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			stop()
			slog.Warn("Interrupted, finishing the current file. Interrupt again to quit immediately")
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// splitList parses a comma-separated flag value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
