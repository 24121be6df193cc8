package browser

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/playwright-community/playwright-go"
)

// UpdateLastUsed updates the LastUsedAt timestamp to the current time.
func (s *Session) UpdateLastUsed() {
	s.LastUsedAt = time.Now()
}

// Navigate navigates the session's page to the specified URL.
func (s *Session) Navigate(url string, opts NavigateOptions) error {
	s.UpdateLastUsed()

	if err := s.guard.Check(url); err != nil {
		return err
	}

	playwrightOpts := playwright.PageGotoOptions{}

	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		playwrightOpts.WaitUntil = &waitUntil
	}

	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	if _, err := s.Page.Goto(url, playwrightOpts); err != nil {
		return s.wrap("navigation", err)
	}

	s.CurrentURL = s.Page.URL()
	return nil
}

// HTML returns the current DOM serialized as HTML.
func (s *Session) HTML() (string, error) {
	s.UpdateLastUsed()

	content, err := s.Page.Content()
	if err != nil {
		return "", s.wrap("content", err)
	}
	return content, nil
}

// ExtractContent returns the visible text of the configured region.
func (s *Session) ExtractContent(opts ExtractOptions) (string, error) {
	if opts.MaxLength == 0 {
		opts.MaxLength = DefaultMaxLength
	}

	raw, err := s.HTML()
	if err != nil {
		return "", err
	}
	return extractText(raw, opts.Region, opts.MaxLength)
}

// Exists reports whether at least one element matches the selector.
func (s *Session) Exists(selector string) (bool, error) {
	s.UpdateLastUsed()

	count, err := s.Page.Locator(selector).Count()
	if err != nil {
		return false, s.wrap("query", err)
	}
	return count > 0, nil
}

// Click clicks an element matching the selector.
func (s *Session) Click(opts ClickOptions) error {
	s.UpdateLastUsed()

	playwrightOpts := playwright.PageClickOptions{}
	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	if err := s.Page.Click(opts.Selector, playwrightOpts); err != nil {
		return s.wrap("click", err)
	}

	// click may have navigated
	s.CurrentURL = s.Page.URL()
	return nil
}

// Fill fills an input element with the specified value.
func (s *Session) Fill(opts FillOptions) error {
	s.UpdateLastUsed()

	playwrightOpts := playwright.PageFillOptions{}
	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	if err := s.Page.Fill(opts.Selector, opts.Value, playwrightOpts); err != nil {
		return s.wrap("fill", err)
	}
	return nil
}

// Type focuses the element and enters text chunk by chunk, calling
// opts.Pause between chunks.
func (s *Session) Type(opts TypeOptions) error {
	s.UpdateLastUsed()

	locator := s.Page.Locator(opts.Selector).First()
	if err := locator.Click(); err != nil {
		return s.wrap("focus", err)
	}

	for i, chunk := range chunkText(opts.Text, opts.ChunkSize) {
		if i > 0 && opts.Pause != nil {
			if err := opts.Pause(); err != nil {
				return err
			}
		}
		if err := locator.PressSequentially(chunk); err != nil {
			return s.wrap("type", err)
		}
	}
	return nil
}

// IsDisabled reports whether the first element matching selector is disabled.
func (s *Session) IsDisabled(selector string) (bool, error) {
	s.UpdateLastUsed()

	locator := s.Page.Locator(selector)
	count, err := locator.Count()
	if err != nil {
		return false, s.wrap("query", err)
	}
	if count == 0 {
		return false, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}

	disabled, err := locator.First().IsDisabled()
	if err != nil {
		return false, s.wrap("state check", err)
	}
	return disabled, nil
}

// Reset clears page state between rows by loading about:blank.
func (s *Session) Reset() error {
	s.UpdateLastUsed()

	if _, err := s.Page.Goto("about:blank"); err != nil {
		return s.wrap("reset", err)
	}
	s.CurrentURL = "about:blank"
	return nil
}

// URL returns the current page URL.
func (s *Session) URL() string {
	return s.Page.URL()
}

// ExposeFunction binds fn as window[name] in every frame, now and after navigation.
func (s *Session) ExposeFunction(name string, fn func(args ...interface{}) interface{}) error {
	if err := s.Page.ExposeFunction(name, fn); err != nil {
		return s.wrap("expose function", err)
	}
	return nil
}

// AddInitScript registers a script evaluated before any page script on every navigation.
func (s *Session) AddInitScript(script string) error {
	if err := s.Page.AddInitScript(playwright.Script{Content: playwright.String(script)}); err != nil {
		return s.wrap("init script", err)
	}
	return nil
}

// Evaluate runs a JavaScript expression in the page.
func (s *Session) Evaluate(expression string, args ...interface{}) (interface{}, error) {
	s.UpdateLastUsed()

	result, err := s.Page.Evaluate(expression, args...)
	if err != nil {
		return nil, s.wrap("evaluate", err)
	}
	return result, nil
}

// Close releases the page, its context and the browser. It is safe to call twice.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.Page != nil {
		if err := s.Page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Context != nil {
		if err := s.Context.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Browser != nil {
		if err := s.Browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.onClose != nil {
		s.onClose(s.Name)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing session %s: %v", s.Name, errs)
	}
	return nil
}

// chunkText splits text into pieces of at most size runes.
func chunkText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if text == "" {
		return nil
	}

	chunks := make([]string, 0, utf8.RuneCountInString(text)/size+1)
	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
