package browser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
)

var (
	// ErrSessionLost means the browser, its context or its page is gone.
	ErrSessionLost = errors.New("browser session lost")

	// ErrNavigationBlocked means the target URL is outside the allow-list.
	ErrNavigationBlocked = errors.New("navigation blocked")

	// ErrElementNotFound means no element matched a required selector.
	ErrElementNotFound = errors.New("element not found")
)

var sessionLostMarkers = []string{
	"target closed",
	"target page, context or browser has been closed",
	"browser has been closed",
	"connection closed",
	"websocket closed",
	"playwright connection closed",
}

// wrap annotates a driver error with the failed operation and classifies it
// as ErrSessionLost when the underlying browser is no longer usable.
func (s *Session) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if s.lost(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrSessionLost, err)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func (s *Session) lost(err error) bool {
	if s.closed {
		return true
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return true
	}
	if s.Page != nil && s.Page.IsClosed() {
		return true
	}
	return isSessionLostMessage(err.Error())
}

func isSessionLostMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range sessionLostMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsSessionLost reports whether err means the session can no longer be used.
func IsSessionLost(err error) bool {
	return errors.Is(err, ErrSessionLost)
}
