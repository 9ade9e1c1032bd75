// Package browser drives a Chrome session with go-rod on behalf of the
// ingestion flow.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/zombor/expense-register/internal/ingest"
)

var _ ingest.Driver = (*Driver)(nil)

// Config holds browser settings.
type Config struct {
	Bin               string        // Chrome binary, empty for the launcher's default
	ControlURL        string        // DevTools URL of an already running Chrome
	Headless          bool
	SlowMotion        time.Duration // delay inserted before each input action
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
}

// DefaultConfig returns a visible browser sized like a laptop screen.
func DefaultConfig() Config {
	return Config{
		Headless:          false,
		SlowMotion:        100 * time.Millisecond,
		ViewportWidth:     1280,
		ViewportHeight:    800,
		NavigationTimeout: 30 * time.Second,
		ActionTimeout:     10 * time.Second,
	}
}

// Driver implements ingest.Driver on a single rod page.
type Driver struct {
	cfg      Config
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// Open connects to cfg.ControlURL, or launches a new Chrome, and opens one page.
func Open(ctx context.Context, cfg Config) (*Driver, error) {
	d := &Driver{cfg: cfg}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launching chrome: %w", err)
		}
		d.launcher = l
		controlURL = url
	}

	// The session must outlive an operator interrupt so the file in flight can finish.
	browser := rod.New().ControlURL(controlURL).SlowMotion(cfg.SlowMotion).Context(context.WithoutCancel(ctx))
	if err := browser.Connect(); err != nil {
		d.cleanup()
		return nil, fmt.Errorf("connecting to chrome: %w", err)
	}
	d.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		d.cleanup()
		return nil, fmt.Errorf("opening page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  cfg.ViewportWidth,
		Height: cfg.ViewportHeight,
	}); err != nil {
		slog.Warn("Failed to set viewport", "error", err)
	}
	d.page = page

	slog.Info("Browser ready", "headless", cfg.Headless, "control_url", controlURL)
	return d, nil
}

// action returns the page bound to ctx with the action timeout applied.
func (d *Driver) action(ctx context.Context) *rod.Page {
	return d.page.Context(ctx).Timeout(d.cfg.ActionTimeout)
}

// textPattern turns literal text into a JavaScript regular expression.
func textPattern(text string) string {
	return regexp.QuoteMeta(text)
}

// find waits, within the action timeout, for an element matching loc.
func find(p *rod.Page, loc ingest.Locator) (*rod.Element, error) {
	var (
		el  *rod.Element
		err error
	)
	if loc.Text == "" {
		el, err = p.Element(loc.Selector)
	} else {
		el, err = p.ElementR(loc.Selector, textPattern(loc.Text))
	}
	if err != nil {
		return nil, fmt.Errorf("element %s not found: %w", loc, err)
	}
	return el, nil
}

// Navigate loads url and waits for the network to go quiet.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx).Timeout(d.cfg.NavigationTimeout)
	defer p.CancelTimeout()

	wait := p.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	wait()
	return nil
}

// CurrentURL returns the address of the page.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	p := d.action(ctx)
	defer p.CancelTimeout()

	info, err := p.Info()
	if err != nil {
		return "", fmt.Errorf("reading page info: %w", err)
	}
	return info.URL, nil
}

// Has checks for an element without waiting for it to appear.
func (d *Driver) Has(ctx context.Context, loc ingest.Locator) (bool, error) {
	p := d.action(ctx)
	defer p.CancelTimeout()

	var (
		ok  bool
		err error
	)
	if loc.Text == "" {
		ok, _, err = p.Has(loc.Selector)
	} else {
		ok, _, err = p.HasR(loc.Selector, textPattern(loc.Text))
	}
	if err != nil {
		return false, fmt.Errorf("looking up %s: %w", loc, err)
	}
	return ok, nil
}

// Fill replaces the content of an input.
func (d *Driver) Fill(ctx context.Context, loc ingest.Locator, value string) error {
	p := d.action(ctx)
	defer p.CancelTimeout()

	el, err := find(p, loc)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("selecting %s: %w", loc, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("typing into %s: %w", loc, err)
	}
	return nil
}

// Click left-clicks an element.
func (d *Driver) Click(ctx context.Context, loc ingest.Locator) error {
	p := d.action(ctx)
	defer p.CancelTimeout()

	el, err := find(p, loc)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("clicking %s: %w", loc, err)
	}
	return nil
}

// Value reads the value property of an input.
func (d *Driver) Value(ctx context.Context, loc ingest.Locator) (string, error) {
	p := d.action(ctx)
	defer p.CancelTimeout()

	el, err := find(p, loc)
	if err != nil {
		return "", err
	}
	v, err := el.Property("value")
	if err != nil {
		return "", fmt.Errorf("reading value of %s: %w", loc, err)
	}
	return v.Str(), nil
}

// UploadFile sets the file of a file input.
func (d *Driver) UploadFile(ctx context.Context, loc ingest.Locator, path string) error {
	p := d.action(ctx)
	defer p.CancelTimeout()

	el, err := find(p, loc)
	if err != nil {
		return err
	}
	if err := el.SetFiles([]string{path}); err != nil {
		return fmt.Errorf("setting file on %s: %w", loc, err)
	}
	return nil
}

// ReadRows returns the cell texts of every element matching rowSelector.
func (d *Driver) ReadRows(ctx context.Context, rowSelector string) ([][]string, error) {
	p := d.action(ctx)
	defer p.CancelTimeout()

	rows, err := p.Elements(rowSelector)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", rowSelector, err)
	}

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells, err := row.Elements("td, th")
		if err != nil {
			return nil, fmt.Errorf("listing cells: %w", err)
		}
		if len(cells) == 0 {
			text, err := row.Text()
			if err != nil {
				return nil, fmt.Errorf("reading row text: %w", err)
			}
			out = append(out, []string{strings.TrimSpace(text)})
			continue
		}

		texts := make([]string, 0, len(cells))
		for _, cell := range cells {
			text, err := cell.Text()
			if err != nil {
				return nil, fmt.Errorf("reading cell text: %w", err)
			}
			texts = append(texts, strings.TrimSpace(text))
		}
		out = append(out, texts)
	}
	return out, nil
}

// Close shuts the page and browser down and removes a launched Chrome.
func (d *Driver) Close() error {
	var err error
	if d.page != nil {
		if cerr := d.page.Close(); cerr != nil {
			err = fmt.Errorf("closing page: %w", cerr)
		}
	}
	d.cleanup()
	return err
}

func (d *Driver) cleanup() {
	// A Chrome we only attached to is left running.
	if d.browser != nil && d.launcher != nil {
		if err := d.browser.Close(); err != nil {
			slog.Debug("Failed to close browser", "error", err)
		}
	}
	if d.launcher != nil {
		d.launcher.Cleanup()
	}
}
