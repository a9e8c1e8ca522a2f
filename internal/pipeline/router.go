package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/aeshef/knowledge-bot/internal/llm"
	"github.com/aeshef/knowledge-bot/internal/models"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

// vocabContext is the vocabulary snapshot handed to the oracle with every
// routing, field-fill, and tag call.
type vocabContext struct {
	Controlled []string                       `json:"namespaces_controlled"`
	Common     map[string][]string            `json:"common"`
	PerType    map[string]map[string][]string `json:"per_type"`
}

func vocabSnapshot(voc *vocab.Vocabulary) vocabContext {
	return vocabContext{
		Controlled: voc.Controlled,
		Common:     voc.Common,
		PerType:    voc.PerType,
	}
}

// Router is the first-stage classifier: it asks the oracle for a type,
// title, tags, attachments and form, then repairs the answer against the
// configured type set and vocabulary.
type Router struct {
	gw     *llm.Client
	logger *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(gw *llm.Client, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{gw: gw, logger: logger}
}

type routeRequest struct {
	Summary      *models.Summary `json:"summary"`
	Source       string          `json:"source"`
	AllowedTypes []string        `json:"allowed_types"`
	Vocabulary   vocabContext    `json:"vocabulary"`
}

// Route classifies one extraction summary into a note payload. The oracle
// call itself cannot fail (the gateway falls back); the only error here is a
// missing routing prompt, which is a deployment problem, not an input one.
func (r *Router) Route(ctx context.Context, cfg *vocab.Config, summary *models.Summary, sourceHint string, opts ...llm.CallOption) (*models.Payload, error) {
	prompt, err := cfg.Prompt("routing")
	if err != nil {
		return nil, err
	}

	userJSON, err := json.Marshal(routeRequest{
		Summary:      summary,
		Source:       sourceHint,
		AllowedTypes: cfg.Types.Names(),
		Vocabulary:   vocabSnapshot(cfg.Vocabulary),
	})
	if err != nil {
		return nil, err
	}

	// The degraded fallback must see the user's text, not the JSON envelope.
	opts = append(opts, llm.WithFallbackText(summary.RawText))
	raw := r.gw.ChatJSON(ctx, prompt, string(userJSON), opts...)

	p := &models.Payload{}
	if err := json.Unmarshal(raw, p); err != nil {
		// Not an object (the oracle returned a bare array or scalar):
		// start from an empty payload, defaults repair the rest.
		r.logger.Warn("router: non-object oracle response", slog.String("error", err.Error()))
		p = &models.Payload{}
	}

	applyRouteDefaults(p, cfg, sourceHint)
	if p.RawText == "" {
		p.RawText = summary.RawText
	}
	enforceType(p, cfg.Types)
	clampEnumFields(p, cfg.Vocabulary)
	p.Tags = prefilterTags(p.Tags, p.Type, cfg.Vocabulary)

	r.logger.Info("routed",
		slog.String("type", p.Type),
		slog.String("title", p.Title),
		slog.String("form", p.Form))
	return p, nil
}

// applyRouteDefaults fills every structural key the oracle left out.
func applyRouteDefaults(p *models.Payload, cfg *vocab.Config, sourceHint string) {
	if p.Type == "" {
		p.Type = cfg.Types.DefaultType()
	}
	if p.Title == "" {
		p.Title = "Untitled"
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Attachments.Links == nil {
		p.Attachments.Links = []string{}
	}
	if p.Attachments.Files == nil {
		p.Attachments.Files = []string{}
	}
	if p.Form == "" {
		p.Form = "text"
	}
	if p.Source == "" {
		p.Source = sourceHint
	}
	if p.Created == "" {
		p.Created = time.Now().Format("2006-01-02")
	}
}

// enforceType replaces a type outside the configured set with the default.
// This runs before enum clamping: the per-type enum tables are keyed by the
// corrected type.
func enforceType(p *models.Payload, types *vocab.Types) {
	if !types.Has(p.Type) {
		p.Type = types.DefaultType()
	}
}

// clampEnumFields forces every enumerated payload field into its allowed
// list, substituting the first allowed value on mismatch. A controlled field
// is never left out-of-vocabulary and never receives an invented value.
func clampEnumFields(p *models.Payload, voc *vocab.Vocabulary) {
	for field, choices := range voc.EnumFields(p.Type) {
		val, ok := p.Field(field)
		if !ok {
			continue
		}
		s, isString := val.(string)
		if !isString {
			continue
		}
		if len(choices) > 0 && !containsString(choices, s) {
			p.SetField(field, choices[0])
		}
	}
}

// prefilterTags is the router's coarse tag filter: structural shape plus an
// exact-string controlled-value check. Slugging and synonym resolution
// happen later in NormalizeTags, which every flow re-applies downstream.
func prefilterTags(tags []string, typeName string, voc *vocab.Vocabulary) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		ns, value, found := strings.Cut(tag, "/")
		if !found {
			continue
		}
		if voc.IsControlled(ns) {
			allowed := voc.AllowedValues(typeName, ns)
			if len(allowed) == 0 || !containsString(allowed, value) {
				continue
			}
		}
		out = append(out, tag)
	}
	return out
}
