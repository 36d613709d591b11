// Package ingestion turns downloaded corpus documents into metadata-tagged
// chunks and hands them to the vector index.
package ingestion

import (
	"path/filepath"
	"strings"
)

// Kind enumerates the supported document payload kinds. The kind is resolved
// once per file at ingestion time and selects the parser variant.
type Kind string

const (
	// KindUnknown represents an unsupported or undetected kind.
	KindUnknown Kind = ""
	// KindPDF represents PDF documents.
	KindPDF Kind = "pdf"
	// KindHTML represents HTML documents.
	KindHTML Kind = "html"
)

// DetectKind infers a document kind from the provided path's extension.
func DetectKind(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF
	case ".html", ".htm":
		return KindHTML
	default:
		return KindUnknown
	}
}
