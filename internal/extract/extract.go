// Package extract turns raw inputs (free text, URLs, local files) into
// extraction summaries for the pipeline.
package extract

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/aeshef/knowledge-bot/internal/models"
)

var (
	urlRe     = regexp.MustCompile(`https?://[^\s)]+`)
	ogTitleRe = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:title["'][^>]+content=["']([^"']+)["']`)
	titleRe   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

const fetchTimeout = 15 * time.Second

// maxFetchBytes bounds how much of a page is read for title extraction.
const maxFetchBytes = 1 << 20

// Kind classifies a batch input line.
type Kind int

const (
	KindText Kind = iota
	KindURL
	KindFile
)

// Detect classifies one input: an http(s) URL, an existing local file, or
// plain text.
func Detect(input string) Kind {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return KindURL
	}
	if info, err := os.Stat(input); err == nil && info.Mode().IsRegular() {
		return KindFile
	}
	return KindText
}

// FromText builds a summary from free text, scanning it for URLs. No network
// traffic happens here; call Enrich to fetch page titles.
func FromText(text string) *models.Summary {
	return &models.Summary{
		RawText: text,
		URLs:    urlRe.FindAllString(text, -1),
		Meta:    map[string]string{},
	}
}

// FromURL builds a summary for a single pasted URL.
func FromURL(url string) *models.Summary {
	return &models.Summary{
		RawText: url,
		URLs:    []string{url},
		Meta:    map[string]string{},
	}
}

// FromFile builds a summary for a local file reference. The file itself is
// not read; its name travels in the meta table for routing context.
func FromFile(path string) *models.Summary {
	return &models.Summary{
		RawText: path,
		URLs:    []string{},
		Meta:    map[string]string{"file": path},
	}
}

// Service performs the network side of extraction.
type Service struct {
	client *http.Client
	logger *slog.Logger
}

// NewService creates a Service. client may be nil.
func NewService(client *http.Client, logger *slog.Logger) *Service {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, logger: logger}
}

// Enrich fetches the first URL's page title into the url_text derived
// channel. Failures are logged and leave the summary unchanged; extraction
// never blocks ingestion.
func (s *Service) Enrich(ctx context.Context, sum *models.Summary) *models.Summary {
	if len(sum.URLs) == 0 {
		return sum
	}
	title, err := s.PageTitle(ctx, sum.URLs[0])
	if err != nil {
		s.logger.Warn("extract: title fetch failed",
			slog.String("url", sum.URLs[0]),
			slog.String("error", err.Error()))
		return sum
	}
	if title == "" {
		return sum
	}
	return sum.WithDerived("url_text", title)
}

// PageTitle fetches a page and pulls its og:title, falling back to the
// <title> element.
func (s *Service) PageTitle(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", err
	}
	html := string(body)
	if m := ogTitleRe.FindStringSubmatch(html); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	if m := titleRe.FindStringSubmatch(html); m != nil {
		return strings.TrimSpace(spaceRe.ReplaceAllString(m[1], " ")), nil
	}
	return "", nil
}
