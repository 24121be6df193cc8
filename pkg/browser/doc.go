// Package browser drives a single Chromium page through Playwright.
//
// A Session wraps one Playwright context and its page. Sessions are created by
// a SessionManager, which owns the Playwright driver process, and are never
// shared: the outreach engine opens one per batch and closes it on every exit
// path.
//
// # Navigation guard
//
// Every Navigate call is checked against a URLGuard built from glob patterns
// (for example "https://www.linkedin.com/*"). Navigating anywhere else fails
// with ErrNavigationBlocked before the browser is touched. Reset is exempt
// because it only ever loads about:blank.
//
// # Errors
//
// Errors that mean the browser, context or page is gone are wrapped with
// ErrSessionLost so callers can tell a dead session from a failed action on a
// live one:
//
//	if errors.Is(err, browser.ErrSessionLost) {
//		// abandon the batch and let the retry policy decide
//	}
//
// # Typing
//
// Type enters text in fixed-size chunks with a caller-supplied pause between
// chunks. Some rich text editors drop characters when a long value is inserted
// at once; chunked input avoids that and reads like a person typing.
package browser
