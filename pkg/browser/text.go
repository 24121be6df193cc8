package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// extractText returns the visible text of the first element named region, or
// of <body> when region is empty. A missing region yields an empty string.
// Block elements are separated by newlines and runs of whitespace collapse.
func extractText(rawHTML, region string, maxLength int) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	if region == "" {
		region = "body"
	}
	root := findElement(doc, strings.ToLower(region))
	if root == nil {
		return "", nil
	}

	var builder strings.Builder
	collectText(root, &builder)

	text := normalizeWhitespace(builder.String())
	if maxLength > 0 {
		runes := []rune(text)
		if len(runes) > maxLength {
			text = string(runes[:maxLength])
		}
	}
	return text, nil
}

// findElement performs a depth-first search for the first element with the tag name
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, builder *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		builder.WriteString(n.Data)
		builder.WriteString(" ")
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if isSkippedElement(tag) || isHidden(n) {
			return
		}
		if tag == "br" {
			builder.WriteString("\n")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collectText(c, builder)
		}
		if isBlockElement(tag) {
			builder.WriteString("\n")
		}
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, builder)
	}
}

// normalizeWhitespace collapses spaces within lines and drops blank lines
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// isSkippedElement returns true for elements whose content is never visible text
func isSkippedElement(tagName string) bool {
	switch tagName {
	case "script", "style", "noscript", "iframe", "embed", "object", "svg", "template", "head":
		return true
	}
	return false
}

// isHidden reports elements marked hidden or aria-hidden
func isHidden(n *html.Node) bool {
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if attr.Val == "true" {
				return true
			}
		}
	}
	return false
}

// isBlockElement returns true for block-level elements (for formatting)
func isBlockElement(tagName string) bool {
	blocks := map[string]bool{
		"div":        true,
		"p":          true,
		"section":    true,
		"article":    true,
		"header":     true,
		"footer":     true,
		"nav":        true,
		"main":       true,
		"aside":      true,
		"h1":         true,
		"h2":         true,
		"h3":         true,
		"h4":         true,
		"h5":         true,
		"h6":         true,
		"ul":         true,
		"ol":         true,
		"li":         true,
		"table":      true,
		"tr":         true,
		"form":       true,
		"blockquote": true,
		"pre":        true,
	}
	return blocks[tagName]
}
