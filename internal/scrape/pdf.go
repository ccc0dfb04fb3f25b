package scrape

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"curator/internal/core"
	"curator/internal/logger"
)

// extractPDF pulls plain text out of every page of a PDF body
func extractPDF(data []byte, sourceURL string) (*core.ScrapedDocument, error) {
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create PDF reader for %s: %v", ErrExtractionFailed, sourceURL, err)
	}

	var textBuilder strings.Builder
	for i := 1; i <= pdfReader.NumPage(); i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("failed to extract PDF page", "page", i, "url", sourceURL, "error", err)
			continue
		}

		textBuilder.WriteString(pageText)
		textBuilder.WriteString("\n\n")
	}

	content := cleanPDFText(textBuilder.String())
	return &core.ScrapedDocument{
		Title:   extractPDFTitle(content),
		Content: content,
	}, nil
}

// cleanPDFText drops blank and very short lines, which are mostly page furniture
func cleanPDFText(rawText string) string {
	var cleanLines []string
	for _, line := range strings.Split(rawText, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 2 {
			cleanLines = append(cleanLines, trimmed)
		}
	}
	return strings.TrimSpace(strings.Join(cleanLines, "\n"))
}

// extractPDFTitle picks the first substantial line that does not look like a URL or a shouted header
func extractPDFTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 10 && len(trimmed) < 200 && !strings.Contains(trimmed, "http") &&
			(len(trimmed) < 50 || !isAllUpperCase(trimmed)) {
			return trimmed
		}
	}
	return ""
}

func isAllUpperCase(s string) bool {
	return strings.ToUpper(s) == s && strings.ToLower(s) != s
}

// IsPDF reports whether a link or its content type denotes a PDF
func IsPDF(link, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	path := strings.ToLower(link)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(path, ".pdf")
}
