package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/aeshef/knowledge-bot/internal/llm"
	"github.com/aeshef/knowledge-bot/internal/models"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

// Namer is the title-refinement stage. It is best effort: when the oracle
// call fails or returns an unusable answer the payload keeps its prior title.
type Namer struct {
	gw     *llm.Client
	logger *slog.Logger
}

// NewNamer creates a Namer.
func NewNamer(gw *llm.Client, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{gw: gw, logger: logger}
}

type nameRequest struct {
	Type      string          `json:"type"`
	Summary   *models.Summary `json:"summary"`
	Filenames []string        `json:"filenames"`
	HintTitle string          `json:"hint_title"`
}

type nameResponse struct {
	Title string `json:"title"`
}

// Name refines the payload title in place. maxWords caps the word count of
// an adopted title; zero means no cap. Returns false when the stage was
// skipped and the prior title retained.
func (n *Namer) Name(ctx context.Context, cfg *vocab.Config, p *models.Payload, summary *models.Summary, maxWords int, opts ...llm.CallOption) bool {
	prompt, err := cfg.Prompt("naming")
	if err != nil {
		n.logger.Warn("namer: prompt unavailable", slog.String("error", err.Error()))
		return false
	}

	userJSON, err := json.Marshal(nameRequest{
		Type:      p.Type,
		Summary:   summary,
		Filenames: p.Filenames,
		HintTitle: p.Title,
	})
	if err != nil {
		return false
	}

	raw, err := n.gw.ChatJSONStrict(ctx, prompt, string(userJSON), opts...)
	if err != nil {
		n.logger.Warn("namer: oracle unavailable, keeping title",
			slog.String("title", p.Title),
			slog.String("error", err.Error()))
		return false
	}

	var resp nameResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		n.logger.Warn("namer: unusable oracle response", slog.String("error", err.Error()))
		return false
	}
	title := strings.Join(strings.Fields(resp.Title), " ")
	if title == "" {
		return false
	}
	if maxWords > 0 {
		words := strings.Fields(title)
		if len(words) > maxWords {
			title = strings.Join(words[:maxWords], " ")
		}
	}
	p.Title = title
	return true
}
