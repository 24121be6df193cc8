package browser

import (
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page is the set of page operations the outreach engine relies on.
// *Session implements it; tests substitute fakes.
type Page interface {
	Navigate(url string, opts NavigateOptions) error
	ExtractContent(opts ExtractOptions) (string, error)
	HTML() (string, error)
	Exists(selector string) (bool, error)
	Click(opts ClickOptions) error
	Fill(opts FillOptions) error
	Type(opts TypeOptions) error
	IsDisabled(selector string) (bool, error)
	Reset() error
	URL() string
}

// Scriptable is implemented by pages that can run scripts and call back into Go.
type Scriptable interface {
	ExposeFunction(name string, fn func(args ...interface{}) interface{}) error
	AddInitScript(script string) error
	Evaluate(expression string, args ...interface{}) (interface{}, error)
}

// Session represents an active browser session with its associated resources.
type Session struct {
	// Name is the unique identifier for this session
	Name string

	// Browser is nil when the session runs on a persistent profile
	Browser playwright.Browser

	Context playwright.BrowserContext
	Page    playwright.Page

	Headless bool

	CreatedAt  time.Time
	LastUsedAt time.Time

	// CurrentURL is the URL of the current page
	CurrentURL string

	guard   *URLGuard
	onClose func(name string)
	closed  bool
}

// SessionOptions configures new browser sessions.
type SessionOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// UserDataDir, when set, launches a persistent context so cookies and
	// logins survive between runs
	UserDataDir string

	Viewport *Viewport

	// Timeout sets the default timeout for operations (in milliseconds)
	Timeout float64

	// Args are extra Chromium command-line switches
	Args []string

	// AllowedURLs are glob patterns that Navigate accepts. Empty allows all.
	AllowedURLs []string
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle"
	WaitUntil string

	// Timeout in milliseconds (0 means default)
	Timeout float64
}

// ExtractOptions configures text extraction.
type ExtractOptions struct {
	// Region is the element name whose text is returned, e.g. "main".
	// Empty means the whole body.
	Region string

	// MaxLength limits the extracted content length (characters)
	MaxLength int
}

// ClickOptions configures element clicking behavior.
type ClickOptions struct {
	Selector string

	// Timeout in milliseconds
	Timeout float64
}

// FillOptions configures form input filling.
type FillOptions struct {
	Selector string
	Value    string

	// Timeout in milliseconds
	Timeout float64
}

// TypeOptions configures chunked keyboard input.
type TypeOptions struct {
	Selector string
	Text     string

	// ChunkSize is the number of characters sent per burst
	ChunkSize int

	// Pause runs between chunks. A non-nil error aborts typing.
	Pause func() error
}

// Default values for various operations
const (
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultMaxLength      = 20000
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 900
	DefaultChunkSize      = 20
	DefaultMaxSessions    = 1
)
