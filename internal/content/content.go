// ABOUTME: Content processing for feed items: HTML detection, Markdown conversion, rendering
// ABOUTME: Builds the item document shown in the reader and glamour-renders it for the terminal

package content

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/charmbracelet/glamour"

	"github.com/harper/skim/internal/config"
	"github.com/harper/skim/internal/models"
)

// htmlTagPattern matches common opening HTML tags. The name must follow
// '<' directly and end at a word boundary, so "a < b" is not a tag.
var htmlTagPattern = regexp.MustCompile(`<(p|div|span|a|br|img|h[1-6]|ul|ol|li|table|tr|td|th|strong|em|b|i|code|pre|blockquote)\b[^>]*>`)

// anyTagPattern matches any tag, for excerpts
var anyTagPattern = regexp.MustCompile(`<[^>]*>`)

// IsHTML checks if content appears to be HTML
func IsHTML(content string) bool {
	if strings.Contains(content, "<!DOCTYPE") || strings.Contains(content, "<html") {
		return true
	}
	return htmlTagPattern.MatchString(content)
}

// ToMarkdown converts HTML content to Markdown.
// Content that doesn't look like HTML is returned unchanged.
func ToMarkdown(content string) string {
	if content == "" || !IsHTML(content) {
		return content
	}

	markdown, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(markdown)
}

// Document builds the Markdown shown for an item: title, byline, link, body.
func Document(item *models.Item) string {
	var b strings.Builder

	title := item.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	var byline []string
	if item.Author != "" {
		byline = append(byline, item.Author)
	}
	if item.PublishedAt != nil {
		byline = append(byline, item.PublishedAt.Local().Format(config.DateFormatLong))
	}
	if len(byline) > 0 {
		fmt.Fprintf(&b, "*%s*\n\n", strings.Join(byline, " · "))
	}
	if item.Link != "" {
		fmt.Fprintf(&b, "<%s>\n\n", item.Link)
	}

	b.WriteString("---\n\n")
	if body := ToMarkdown(item.Body); body != "" {
		b.WriteString(body)
	} else {
		b.WriteString("(No content available)")
	}
	b.WriteString("\n")
	return b.String()
}

// Render renders Markdown for a terminal of the given width. Rendering
// failures fall back to the plain Markdown.
func Render(markdown string, width int) string {
	if width <= 0 {
		width = config.SeparatorWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}

// Excerpt returns at most max runes of body as single-line plain text.
func Excerpt(body string, max int) string {
	text := anyTagPattern.ReplaceAllString(body, " ")
	text = strings.Join(strings.Fields(text), " ")
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max])) + "…"
}
