package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aeshef/knowledge-bot/internal/llm"
	"github.com/aeshef/knowledge-bot/internal/models"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

// Filler is the field-filling stage: it asks the oracle for values of the
// fields the note template declares and adopts only those. Best effort; a
// failed call leaves the payload untouched.
type Filler struct {
	gw     *llm.Client
	logger *slog.Logger
}

// NewFiller creates a Filler.
func NewFiller(gw *llm.Client, logger *slog.Logger) *Filler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filler{gw: gw, logger: logger}
}

type fillRequest struct {
	Type          string          `json:"type"`
	AllowedFields []string        `json:"allowed_fields"`
	Summary       *models.Summary `json:"summary"`
	Filenames     []string        `json:"filenames"`
	Vocabulary    vocabContext    `json:"vocabulary"`
}

// Fill populates template-declared fields on the payload. Fields the
// template does not declare are ignored even when the oracle offers them,
// and enumerated values are clamped to their allowed lists. Returns false
// when the stage was skipped.
func (f *Filler) Fill(ctx context.Context, cfg *vocab.Config, p *models.Payload, summary *models.Summary, allowed []string, opts ...llm.CallOption) bool {
	if len(allowed) == 0 {
		return false
	}
	prompt, err := cfg.Prompt("fields")
	if err != nil {
		f.logger.Warn("filler: prompt unavailable", slog.String("error", err.Error()))
		return false
	}

	userJSON, err := json.Marshal(fillRequest{
		Type:          p.Type,
		AllowedFields: allowed,
		Summary:       summary,
		Filenames:     p.Filenames,
		Vocabulary:    vocabSnapshot(cfg.Vocabulary),
	})
	if err != nil {
		return false
	}

	raw, err := f.gw.ChatJSONStrict(ctx, prompt, string(userJSON), opts...)
	if err != nil {
		f.logger.Warn("filler: oracle unavailable, skipping fields", slog.String("error", err.Error()))
		return false
	}

	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		f.logger.Warn("filler: unusable oracle response", slog.String("error", err.Error()))
		return false
	}

	allowedSet := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = struct{}{}
	}
	adopted := 0
	for name, val := range values {
		if _, ok := allowedSet[name]; !ok {
			continue
		}
		if val == nil {
			continue
		}
		p.SetField(name, val)
		adopted++
	}
	clampEnumFields(p, cfg.Vocabulary)
	f.logger.Debug("fields filled", slog.Int("adopted", adopted), slog.String("type", p.Type))
	return adopted > 0
}
