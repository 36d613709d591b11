// Package corpus reads the document registry backing the ingestion pipeline:
// a semicolon-delimited table of registered documents and a JSON sidecar with
// descriptive metadata per document id.
package corpus

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Record is one row of the registry table. Extra holds every column beyond
// the id and URL (registration date, jurisdiction, ...) keyed by header name.
type Record struct {
	DocumentID string
	URL        string
	Extra      map[string]string
}

// ReadRegistry parses the semicolon-delimited registry table. The header row
// must contain document_id and document_url columns; all other columns are
// kept in Extra.
func ReadRegistry(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("registry %s is empty", path)
	}

	header := rows[0]
	idCol, urlCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "document_id":
			idCol = i
		case "document_url":
			urlCol = i
		}
	}
	if idCol < 0 || urlCol < 0 {
		return nil, fmt.Errorf("registry %s is missing document_id or document_url column", path)
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if idCol >= len(row) || urlCol >= len(row) {
			continue
		}
		record := Record{
			DocumentID: strings.TrimSpace(row[idCol]),
			URL:        strings.TrimSpace(row[urlCol]),
			Extra:      map[string]string{},
		}
		if record.DocumentID == "" || record.URL == "" {
			continue
		}
		for i, value := range row {
			if i == idCol || i == urlCol || i >= len(header) {
				continue
			}
			record.Extra[strings.TrimSpace(header[i])] = strings.TrimSpace(value)
		}
		records = append(records, record)
	}

	return records, nil
}

// ReadSidecar loads the JSON metadata sidecar keyed by document id. The
// per-document mapping is merged into every chunk produced for that document.
func ReadSidecar(path string) (map[string]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata sidecar: %w", err)
	}

	sidecar := make(map[string]map[string]any)
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return nil, fmt.Errorf("parse metadata sidecar: %w", err)
	}

	return sidecar, nil
}
