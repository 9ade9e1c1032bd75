package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Session signs in to the target application and opens the expense form.
type Session struct {
	driver Driver
	poller *Poller
	cfg    Config
}

// NewSession creates a Session.
func NewSession(driver Driver, poller *Poller, cfg Config) *Session {
	return &Session{driver: driver, poller: poller, cfg: cfg}
}

// Login submits the operator's credentials and waits until the browser leaves
// the login page. Any failure is reported as ErrAuth.
func (s *Session) Login(ctx context.Context) error {
	form := s.cfg.UI.Login
	slog.Info("Logging in", "url", s.cfg.URL(form.Path), "email", s.cfg.Email)

	if err := s.driver.Navigate(ctx, s.cfg.URL(form.Path)); err != nil {
		return fmt.Errorf("%w: opening login page: %w", ErrAuth, err)
	}
	if err := s.driver.Fill(ctx, form.Email, s.cfg.Email); err != nil {
		return fmt.Errorf("%w: entering email: %w", ErrAuth, err)
	}
	if err := s.driver.Fill(ctx, form.Password, s.cfg.Password); err != nil {
		return fmt.Errorf("%w: entering password: %w", ErrAuth, err)
	}
	if err := s.driver.Click(ctx, form.Submit); err != nil {
		return fmt.Errorf("%w: submitting login: %w", ErrAuth, err)
	}

	left, err := s.poller.Until(ctx, s.cfg.Timing.PollInterval, s.cfg.Timing.LoginTimeout, func() bool {
		url, err := s.driver.CurrentURL(ctx)
		return err == nil && !strings.Contains(url, form.Path)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if !left {
		return fmt.Errorf("%w: %s", ErrAuth, s.loginError(ctx))
	}

	url, _ := s.driver.CurrentURL(ctx)
	slog.Info("Logged in", "url", url)
	return nil
}

// loginError returns the message shown by the login form, if any.
func (s *Session) loginError(ctx context.Context) string {
	const fallback = "still on the login page"
	errLoc := s.cfg.UI.Login.Error
	if ok, err := s.driver.Has(ctx, errLoc); err != nil || !ok {
		return fallback
	}
	rows, err := s.driver.ReadRows(ctx, errLoc.Selector)
	if err != nil || len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] == "" {
		return fallback
	}
	return rows[0][0]
}

// OpenForm navigates to the expense form and selects single-receipt entry.
func (s *Session) OpenForm(ctx context.Context) error {
	form := s.cfg.UI.Form
	if err := s.driver.Navigate(ctx, s.cfg.URL(form.Path)); err != nil {
		return fmt.Errorf("%w: opening expense form: %w", ErrDriver, err)
	}
	if ok, err := s.driver.Has(ctx, form.SingleTab); err == nil && ok {
		if err := s.driver.Click(ctx, form.SingleTab); err != nil {
			return fmt.Errorf("%w: selecting single upload: %w", ErrDriver, err)
		}
		_ = s.poller.Pause(ctx, s.cfg.Timing.ClearPause)
	}
	return nil
}
