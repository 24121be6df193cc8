package contact

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
)

// ProfilePaths are the gjson paths tried, in order, against every embedded
// <code> JSON block to find the profile URN.
var ProfilePaths = []string{
	`data.data.identityDashProfilesByMemberIdentity.\*elements.0`,
	`data.identityDashProfilesByMemberIdentity.\*elements.0`,
}

// HTMLSource is anything that can return the current DOM as HTML.
type HTMLSource interface {
	HTML() (string, error)
}

// Resolver finds messaging identifiers on profile pages.
type Resolver struct {
	paths []string
}

// NewResolver creates a Resolver using ProfilePaths.
func NewResolver() *Resolver {
	return &Resolver{paths: ProfilePaths}
}

// ResolveMessagingID reads the page and returns the messaging identifier.
// An empty id with a nil error means the page carries no recognizable data.
func (r *Resolver) ResolveMessagingID(ctx context.Context, page HTMLSource) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}
	return extractMessagingID(raw, r.paths), nil
}

// ExtractMessagingID returns the identifier found in rawHTML, or "".
func ExtractMessagingID(rawHTML string) string {
	return extractMessagingID(rawHTML, ProfilePaths)
}

func extractMessagingID(rawHTML string, paths []string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	for _, block := range codeBlocks(doc) {
		if !gjson.Valid(block) {
			continue
		}
		for _, path := range paths {
			urn := gjson.Get(block, path)
			if urn.Type != gjson.String {
				continue
			}
			if id := urnTail(urn.String()); id != "" {
				return id
			}
		}
	}
	return ""
}

// codeBlocks returns the trimmed contents of every <code> element. The site
// wraps some payloads in HTML comments, so comment text counts too.
func codeBlocks(doc *html.Node) []string {
	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "code" {
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode || c.Type == html.CommentNode {
					b.WriteString(c.Data)
				}
			}
			if text := strings.TrimSpace(b.String()); text != "" {
				blocks = append(blocks, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return blocks
}

// urnTail returns the segment after the last ':' of a URN
func urnTail(urn string) string {
	urn = strings.TrimSpace(urn)
	if i := strings.LastIndex(urn, ":"); i >= 0 {
		return urn[i+1:]
	}
	return urn
}
