// Package fetcher downloads registered documents and classifies their URLs
// as PDF or HTML ahead of parsing.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/lisakoeritz/aien-api/corpus"
)

const (
	probeTimeout    = 360 * time.Second
	downloadTimeout = 60 * time.Second
	maxProbes       = 8
)

// pdfPattern matches URLs whose path or query names a .pdf file, including
// URL-encoded separators. Such URLs skip the network probe entirely.
var pdfPattern = regexp.MustCompile(`(?i)(/|%2F|=)([^/]+\.pdf)(\?|&|$)`)

// Classification partitions an input URL set: every URL lands in exactly one
// of the three buckets.
type Classification struct {
	PDF    []string
	HTML   []string
	Errors []string
}

type Fetcher struct {
	client *http.Client
	logger *log.Logger
}

func New(logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{
		client: &http.Client{},
		logger: logger,
	}
}

// ClassifyURLs splits urls into PDF, HTML and error buckets. URLs matching
// the .pdf filename pattern are classified without a network call; the rest
// are probed concurrently (at most maxProbes in flight) and sorted by the
// declared Content-Type. A probe failure places the URL in Errors and is
// logged, never propagated, so one bad URL cannot abort the batch.
func (f *Fetcher) ClassifyURLs(ctx context.Context, urls []string) Classification {
	var result Classification

	ambiguous := make([]string, 0, len(urls))
	for _, url := range urls {
		if pdfPattern.MatchString(url) {
			result.PDF = append(result.PDF, url)
		} else {
			ambiguous = append(ambiguous, url)
		}
	}

	kinds := make([]string, len(ambiguous))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxProbes)
	for i, url := range ambiguous {
		i, url := i, url
		group.Go(func() error {
			kind, err := f.probeContentType(groupCtx, url)
			if err != nil {
				f.logger.Printf("probe failed for %s: %v", url, err)
				kinds[i] = "error"
				return nil
			}
			kinds[i] = kind
			return nil
		})
	}
	// Probe closures never return an error.
	_ = group.Wait()

	for i, url := range ambiguous {
		switch kinds[i] {
		case "pdf":
			result.PDF = append(result.PDF, url)
		case "error":
			result.Errors = append(result.Errors, url)
		default:
			result.HTML = append(result.HTML, url)
		}
	}

	return result
}

func (f *Fetcher) probeContentType(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create probe request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch content type: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("probe returned status %s", resp.Status)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/pdf") {
		return "pdf", nil
	}
	return "html", nil
}

// DownloadDocuments fetches every registered document into dir, one file per
// document id named document_<id>.<pdf|html> by the response content type.
// Documents already on disk are skipped, so re-running after a partial batch
// only fetches what is missing. A failed download is logged and the batch
// moves on. Returns the number of files written.
func (f *Fetcher) DownloadDocuments(ctx context.Context, records []corpus.Record, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create documents directory: %w", err)
	}

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionShowCount(),
	)

	written := 0
	for _, record := range records {
		if existing := existingDocument(dir, record.DocumentID); existing != "" {
			f.logger.Printf("skip %s: %s already exists", record.DocumentID, existing)
			_ = bar.Add(1)
			continue
		}

		if err := f.downloadOne(ctx, record, dir); err != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			f.logger.Printf("download failed for %s -- %s: %v", record.DocumentID, record.URL, err)
			_ = bar.Add(1)
			continue
		}
		written++
		_ = bar.Add(1)
	}

	return written, nil
}

func (f *Fetcher) downloadOne(ctx context.Context, record corpus.Record, dir string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, record.URL, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("download returned status %s", resp.Status)
	}

	ext := ".html"
	if strings.Contains(resp.Header.Get("Content-Type"), "application/pdf") {
		ext = ".pdf"
	}

	path := filepath.Join(dir, DocumentFilename(record.DocumentID, ext))
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	f.logger.Printf("downloaded %s -- %s as %s", record.DocumentID, record.URL, path)
	return nil
}

// DocumentFilename names the on-disk file for a document id and extension.
func DocumentFilename(id, ext string) string {
	return "document_" + id + ext
}

func existingDocument(dir, id string) string {
	for _, ext := range []string{".pdf", ".html"} {
		path := filepath.Join(dir, DocumentFilename(id, ext))
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
