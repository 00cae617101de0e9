package pagetext

import (
	"strings"

	"golang.org/x/net/html"
)

// Config controls what survives extraction.
type Config struct {
	TagsToSkip    []string
	MaxOutputSize int
}

var DefaultConfig = Config{
	TagsToSkip: []string{
		"script", "style", "noscript", "svg", "iframe",
		"link", "meta", "head", "title", "template",
	},
	MaxOutputSize: 20_000,
}

// ExtractText flattens a page's HTML into readable text for
// extract_info / summarize payloads and planner page context. Falls back
// to the raw input when the HTML cannot be parsed.
func ExtractText(rawHTML string, cfg *Config) string {
	if cfg == nil {
		cfg = &DefaultConfig
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return truncate(rawHTML, cfg.MaxOutputSize)
	}

	root := findBody(doc)
	if root == nil {
		root = doc
	}

	var sb strings.Builder
	collectText(root, cfg, &sb)
	return truncate(normalizeWhitespace(sb.String()), cfg.MaxOutputSize)
}

// Title returns the page title, or "" when none is present.
func Title(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func collectText(n *html.Node, cfg *Config, sb *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		text := strings.Join(strings.Fields(n.Data), " ")
		if text != "" {
			sb.WriteString(text)
			sb.WriteByte(' ')
		}
		return
	case html.ElementNode:
		if isOneOf(n.Data, cfg.TagsToSkip...) {
			return
		}
		if isBlock(n.Data) {
			sb.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, cfg, sb)
	}
}

func isBlock(tag string) bool {
	return isOneOf(tag,
		"p", "div", "section", "article", "li", "tr", "br",
		"h1", "h2", "h3", "h4", "h5", "h6")
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func truncate(s string, maxSize int) string {
	if maxSize > 0 && len(s) > maxSize {
		return s[:maxSize] + "\n... (truncated)"
	}
	return s
}

func isOneOf(s string, candidates ...string) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}
