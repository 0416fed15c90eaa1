package ingestion

import (
	"regexp"
	"strings"
)

var multiBlankLines = regexp.MustCompile(`\n{3,}`)

// CleanText normalizes text content while preserving structure.
// Line endings become LF, trailing whitespace is stripped per line, and
// runs of blank lines collapse to at most two.
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			line = ""
		}
		cleaned = append(cleaned, line)
	}

	result := strings.Join(cleaned, "\n")
	result = multiBlankLines.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}
