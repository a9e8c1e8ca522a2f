package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aeshef/knowledge-bot/internal/llm"
	"github.com/aeshef/knowledge-bot/internal/models"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

// Tagger is the tag-refinement stage. The oracle proposes candidates; the
// deterministic normalizer decides what survives. When the oracle is
// unavailable the router's coarse tags are normalized instead, so the
// payload always ends with a valid tag set.
type Tagger struct {
	gw     *llm.Client
	logger *slog.Logger
}

// NewTagger creates a Tagger.
func NewTagger(gw *llm.Client, logger *slog.Logger) *Tagger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tagger{gw: gw, logger: logger}
}

type tagRequest struct {
	Type       string          `json:"type"`
	Title      string          `json:"title"`
	Summary    *models.Summary `json:"summary"`
	Existing   []string        `json:"existing_tags"`
	Vocabulary vocabContext    `json:"vocabulary"`
}

// Tag replaces the payload's tags with the normalized result of the oracle's
// candidates, falling back to normalizing the existing tags. Returns true
// when the oracle's candidates were used.
func (t *Tagger) Tag(ctx context.Context, cfg *vocab.Config, p *models.Payload, summary *models.Summary, opts ...llm.CallOption) bool {
	candidates, fromOracle := t.propose(ctx, cfg, p, summary, opts...)
	p.Tags = NormalizeTags(candidates, p.Type, cfg.Vocabulary)
	return fromOracle
}

func (t *Tagger) propose(ctx context.Context, cfg *vocab.Config, p *models.Payload, summary *models.Summary, opts ...llm.CallOption) ([]string, bool) {
	prompt, err := cfg.Prompt("tags")
	if err != nil {
		t.logger.Warn("tagger: prompt unavailable", slog.String("error", err.Error()))
		return p.Tags, false
	}

	userJSON, err := json.Marshal(tagRequest{
		Type:       p.Type,
		Title:      p.Title,
		Summary:    summary,
		Existing:   p.Tags,
		Vocabulary: vocabSnapshot(cfg.Vocabulary),
	})
	if err != nil {
		return p.Tags, false
	}

	raw, err := t.gw.ChatJSONStrict(ctx, prompt, string(userJSON), opts...)
	if err != nil {
		t.logger.Warn("tagger: oracle unavailable, normalizing existing tags", slog.String("error", err.Error()))
		return p.Tags, false
	}

	// The oracle may answer a bare array or an object with a tags key.
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}
	var obj struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Tags != nil {
		return obj.Tags, true
	}
	t.logger.Warn("tagger: unusable oracle response")
	return p.Tags, false
}
