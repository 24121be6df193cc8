package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// SessionManager owns the Playwright driver and the sessions launched from it.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	playwright  *playwright.Playwright
	opts        SessionOptions
	guard       *URLGuard
	maxSessions int
	opened      int
	initialized bool
}

// NewSessionManager creates a new session manager. Every session it opens
// uses opts.
func NewSessionManager(opts SessionOptions) (*SessionManager, error) {
	guard, err := NewURLGuard(opts.AllowedURLs)
	if err != nil {
		return nil, err
	}

	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	return &SessionManager{
		sessions:    make(map[string]*Session),
		opts:        opts,
		guard:       guard,
		maxSessions: DefaultMaxSessions,
	}, nil
}

// Initialize installs the browser binaries if needed and starts the driver.
// This must be called before opening any sessions.
func (m *SessionManager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.playwright = pw
	m.initialized = true
	return nil
}

// Open launches a new session. Only one session may be open at a time.
func (m *SessionManager) Open(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("session manager not initialized")
	}
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", m.maxSessions)
	}

	m.opened++
	name := fmt.Sprintf("batch-%d", m.opened)

	var (
		session *Session
		err     error
	)
	if m.opts.UserDataDir != "" {
		session, err = m.launchPersistent(name)
	} else {
		session, err = m.launchEphemeral(name)
	}
	if err != nil {
		return nil, err
	}

	session.Page.SetDefaultTimeout(m.opts.Timeout)
	session.guard = m.guard
	session.onClose = m.release

	m.sessions[name] = session
	return session, nil
}

func (m *SessionManager) launchEphemeral(name string) (*Session, error) {
	browser, err := m.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.opts.Headless),
		Args:     m.opts.Args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  m.opts.Viewport.Width,
			Height: m.opts.Viewport.Height,
		},
	})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		_ = context.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return newSession(name, browser, context, page, m.opts.Headless), nil
}

func (m *SessionManager) launchPersistent(name string) (*Session, error) {
	context, err := m.playwright.Chromium.LaunchPersistentContext(m.opts.UserDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(m.opts.Headless),
		Args:     m.opts.Args,
		Viewport: &playwright.Size{
			Width:  m.opts.Viewport.Width,
			Height: m.opts.Viewport.Height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch persistent context: %w", err)
	}

	// a persistent context opens with one tab already
	var page playwright.Page
	if pages := context.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = context.NewPage()
		if err != nil {
			_ = context.Close()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}

	return newSession(name, nil, context, page, m.opts.Headless), nil
}

func newSession(name string, browser playwright.Browser, context playwright.BrowserContext, page playwright.Page, headless bool) *Session {
	now := time.Now()
	return &Session{
		Name:       name,
		Browser:    browser,
		Context:    context,
		Page:       page,
		Headless:   headless,
		CreatedAt:  now,
		LastUsedAt: now,
		CurrentURL: "about:blank",
	}
}

func (m *SessionManager) release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, name)
}

// Shutdown closes all sessions and stops the driver.
func (m *SessionManager) Shutdown() error {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		open = append(open, session)
	}
	m.mu.Unlock()

	for _, session := range open {
		_ = session.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
	}
	return nil
}
