package ingestion

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractTextFromHTML reduces a job-posting HTML document to readable text.
// Script, style, and navigation chrome are dropped; block elements become
// separate lines.
func ExtractTextFromHTML(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, nav, header, footer, iframe").Each(func(_ int, s *goquery.Selection) {
		s.Remove()
	})

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var sb strings.Builder
	root.Find("h1, h2, h3, h4, p, li, td, div").Each(func(_ int, s *goquery.Selection) {
		// Only take leaf-ish nodes to avoid duplicating nested text
		if s.Children().Length() > 0 && s.Is("div") {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	})

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		// Fall back to the whole document text
		text = root.Text()
	}

	return CleanText(text), nil
}
