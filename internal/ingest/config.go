package ingest

import (
	"fmt"
	"strings"
	"time"
)

// Timing holds every bounded wait used during a run.
type Timing struct {
	PollInterval    time.Duration // tick for all polling
	AnalysisTimeout time.Duration // ceiling for server-side analysis
	AckTimeout      time.Duration // ceiling for the post-submit acknowledgment
	AfterSubmit     time.Duration // pause after a submission
	BetweenFiles    time.Duration // pause before the next file
	ClearPause      time.Duration // pause after clearing the form
	LoginTimeout    time.Duration // ceiling for leaving the login page
	ListingWait     time.Duration // ceiling for listing rows to render
}

// DefaultTiming returns the waits the expense form is known to need.
func DefaultTiming() Timing {
	return Timing{
		PollInterval:    500 * time.Millisecond,
		AnalysisTimeout: 30 * time.Second,
		AckTimeout:      5 * time.Second,
		AfterSubmit:     2 * time.Second,
		BetweenFiles:    1 * time.Second,
		ClearPause:      500 * time.Millisecond,
		LoginTimeout:    15 * time.Second,
		ListingWait:     10 * time.Second,
	}
}

// Listing describes the record listing view.
type Listing struct {
	Path         string
	RowSelector  string
	DateColumn   int
	AmountColumn int
}

// LoginForm describes the login page.
type LoginForm struct {
	Path     string
	Email    Locator
	Password Locator
	Submit   Locator
	Error    Locator
}

// ExpenseForm describes the single-receipt expense form.
type ExpenseForm struct {
	Path      string
	SingleTab Locator
	FileInput Locator
	Analyzing Locator
	Date      Locator
	Amount    Locator
	Folder    Locator
	Submit    Locator
	Ack       Locator
	Clear     Locator
}

// UI collects the addresses of the target application's views.
type UI struct {
	Login   LoginForm
	Listing Listing
	Form    ExpenseForm
}

// DefaultUI returns the selectors of the expense application.
func DefaultUI() UI {
	return UI{
		Login: LoginForm{
			Path:     "/login",
			Email:    Locator{Selector: `input[id="email"]`},
			Password: Locator{Selector: `input[id="password"]`},
			Submit:   Locator{Selector: `button[type="submit"]`},
			Error:    Locator{Selector: `.text-red-600`},
		},
		Listing: Listing{
			Path:         "/management",
			RowSelector:  "tbody tr",
			DateColumn:   2,
			AmountColumn: 6,
		},
		Form: ExpenseForm{
			Path:      "/expenses",
			SingleTab: Locator{Selector: `button[role="tab"]`, Text: "1枚ずつ登録"},
			FileInput: Locator{Selector: `input[type="file"]`},
			Analyzing: Locator{Selector: "body *", Text: "AIが領収書を解析中"},
			Date:      Locator{Selector: `input[name="transaction_date"]`},
			Amount:    Locator{Selector: `input[name="amount"]`},
			Folder:    Locator{Selector: `input[name="folder_number"]`},
			Submit:    Locator{Selector: `button[type="submit"]`, Text: "経費を登録"},
			Ack:       Locator{Selector: "body *", Text: "登録完了"},
			Clear:     Locator{Selector: `button:has(.lucide-x)`},
		},
	}
}

// Config is the immutable configuration of one run.
type Config struct {
	BaseURL  string
	Email    string
	Password string
	RootDir  string
	Folders  []string // allow-list; empty selects every digit-prefixed folder

	// StrictAnalysis fails a file whose analysis timed out with an empty amount
	// instead of submitting it as is.
	StrictAnalysis bool

	Timing Timing
	UI     UI
}

// Validate checks the settings needed before any UI interaction.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return fmt.Errorf("%w: base url is required", ErrConfig)
	case c.Email == "":
		return fmt.Errorf("%w: email is required", ErrConfig)
	case c.Password == "":
		return fmt.Errorf("%w: password is required", ErrConfig)
	case c.RootDir == "":
		return fmt.Errorf("%w: root directory is required", ErrConfig)
	}
	return nil
}

// URL joins a view path onto the base address.
func (c Config) URL(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}
