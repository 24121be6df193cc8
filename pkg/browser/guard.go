package browser

import (
	"fmt"

	"github.com/gobwas/glob"
)

// URLGuard handles glob pattern matching for navigation targets
type URLGuard struct {
	allowed []glob.Glob
}

// NewURLGuard compiles the allow-list. An empty list allows every URL.
func NewURLGuard(patterns []string) (*URLGuard, error) {
	g := &URLGuard{}
	for _, pattern := range patterns {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid url pattern '%s': %w", pattern, err)
		}
		g.allowed = append(g.allowed, compiled)
	}
	return g, nil
}

// IsAllowed reports whether url matches any allowed pattern.
func (g *URLGuard) IsAllowed(url string) bool {
	if g == nil || len(g.allowed) == 0 {
		return true
	}
	for _, pattern := range g.allowed {
		if pattern.Match(url) {
			return true
		}
	}
	return false
}

// Check returns ErrNavigationBlocked for a URL outside the allow-list.
func (g *URLGuard) Check(url string) error {
	if !g.IsAllowed(url) {
		return fmt.Errorf("%w: %s", ErrNavigationBlocked, url)
	}
	return nil
}
