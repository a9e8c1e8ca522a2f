// Package batch runs the capture pipeline over a file of inputs without the
// pending-confirmation step: every line is classified and committed
// directly.
package batch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aeshef/knowledge-bot/internal/extract"
	"github.com/aeshef/knowledge-bot/internal/ingest"
	"github.com/aeshef/knowledge-bot/internal/models"
	"github.com/aeshef/knowledge-bot/internal/pipeline"
)

// Runner drives batch ingestion.
type Runner struct {
	pipe      *pipeline.Pipeline
	svc       *ingest.Service
	extractor *extract.Service
	logger    *slog.Logger
}

// NewRunner creates a batch Runner.
func NewRunner(pipe *pipeline.Pipeline, svc *ingest.Service, extractor *extract.Service, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{pipe: pipe, svc: svc, extractor: extractor, logger: logger}
}

// Entry records the outcome for one input line.
type Entry struct {
	Input string
	Path  string
	Err   error
}

// Run ingests one entry per non-blank line of inputPath: plain text, an
// http(s) URL, or a path to an existing local file. Failing lines are
// reported in the result but do not stop the batch.
func (r *Runner) Run(ctx context.Context, inputPath string) ([]Entry, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("batch: open %s: %w", inputPath, err)
	}
	defer f.Close()

	var out []Entry
	// bufio.Reader rather than a Scanner: one over-long line must not
	// abort the whole batch.
	br := bufio.NewReader(f)
	for {
		raw, readErr := br.ReadString('\n')
		line := strings.TrimSpace(raw)
		if line != "" {
			path, err := r.Process(ctx, line)
			if err != nil {
				r.logger.Warn("batch entry failed",
					slog.String("input", line),
					slog.String("error", err.Error()))
			}
			out = append(out, Entry{Input: line, Path: path, Err: err})
		}
		if readErr == io.EOF {
			return out, nil
		}
		if readErr != nil {
			return out, fmt.Errorf("batch: read %s: %w", inputPath, readErr)
		}
	}
}

// Process classifies and commits a single input, returning the note path.
func (r *Runner) Process(ctx context.Context, input string) (string, error) {
	summary := r.summarize(ctx, input)

	res, err := r.pipe.Run(ctx, summary, pipeline.RunOptions{Source: "batch", Batch: true})
	if err != nil {
		return "", err
	}
	return r.svc.Commit(ctx, res.Payload)
}

func (r *Runner) summarize(ctx context.Context, input string) *models.Summary {
	switch extract.Detect(input) {
	case extract.KindURL:
		return r.extractor.Enrich(ctx, extract.FromURL(input))
	case extract.KindFile:
		return extract.FromFile(input)
	default:
		return r.extractor.Enrich(ctx, extract.FromText(input))
	}
}
