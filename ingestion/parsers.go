package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// DocumentPayload is a raw corpus document read from disk.
type DocumentPayload struct {
	DocumentID string
	Path       string
	Data       []byte
}

// Page is one logical text unit of a parsed document.
type Page struct {
	Number int
	Text   string
}

// ParsedDocument is the ordered page sequence extracted from one payload.
type ParsedDocument struct {
	DocumentID string
	Source     string
	Pages      []Page
}

type DocumentParser interface {
	Parse(ctx context.Context, payload DocumentPayload) (*ParsedDocument, error)
}

// ParserFor returns the parser variant for the given kind.
func ParserFor(kind Kind) (DocumentParser, error) {
	switch kind {
	case KindPDF:
		return pdfParser{}, nil
	case KindHTML:
		return htmlParser{}, nil
	default:
		return nil, fmt.Errorf("no parser for kind %q", kind)
	}
}

type pdfParser struct{}

func (pdfParser) Parse(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(payload.Data), int64(len(payload.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", payload.Path, err)
	}

	doc := &ParsedDocument{DocumentID: payload.DocumentID, Source: payload.Path}
	for num := 1; num <= reader.NumPage(); num++ {
		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract pdf text from %s page %d: %w", payload.Path, num, err)
		}
		text = normalizePlainText(text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc.Pages = append(doc.Pages, Page{Number: num, Text: text})
	}

	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("pdf %s contains no extractable text", payload.Path)
	}
	return doc, nil
}

type htmlParser struct{}

func (htmlParser) Parse(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	root, err := html.Parse(bytes.NewReader(payload.Data))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", payload.Path, err)
	}

	var sb strings.Builder
	collectText(root, &sb)

	text := normalizePlainText(sb.String())
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("html %s contains no extractable text", payload.Path)
	}

	// HTML has no native pagination; the whole body is a single unit.
	return &ParsedDocument{
		DocumentID: payload.DocumentID,
		Source:     payload.Path,
		Pages:      []Page{{Number: 1, Text: text}},
	}, nil
}

func collectText(node *html.Node, sb *strings.Builder) {
	if node.Type == html.ElementNode {
		switch node.Data {
		case "script", "style", "noscript", "head":
			return
		}
	}
	if node.Type == html.TextNode {
		if trimmed := strings.TrimSpace(node.Data); trimmed != "" {
			sb.WriteString(trimmed)
			sb.WriteString("\n")
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
	if node.Type == html.ElementNode {
		switch node.Data {
		case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "br", "tr":
			sb.WriteString("\n")
		}
	}
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
