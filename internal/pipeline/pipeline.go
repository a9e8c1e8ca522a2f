package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/aeshef/knowledge-bot/internal/apperr"
	"github.com/aeshef/knowledge-bot/internal/llm"
	"github.com/aeshef/knowledge-bot/internal/models"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

// transcriptTimeout bounds oracle calls that carry a full transcript in the
// request body; those run far longer than ordinary routing calls.
const transcriptTimeout = 3 * time.Minute

// batchTitleWords caps the title length in batch mode, where titles become
// file names en masse.
const batchTitleWords = 3

// TemplateIntrospector reports which fields a note type's template declares.
// The field-filling stage asks the oracle only for these.
type TemplateIntrospector interface {
	Fields(typeName string) ([]string, error)
}

// RunOptions carries per-ingest knobs.
type RunOptions struct {
	// Source is a hint about where the content came from (chat, batch,
	// api); the router adopts it when the oracle offers nothing better.
	Source string
	// Batch enables batch-mode behavior: short titles, no interactive
	// affordances.
	Batch bool
}

// StageStatus records whether a best-effort stage applied its result.
type StageStatus struct {
	Stage   string `json:"stage"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

// Result is one completed pipeline run.
type Result struct {
	Payload *models.Payload `json:"payload"`
	Stages  []StageStatus   `json:"stages"`
}

// Pipeline drives a summary through routing, naming, field filling and tag
// normalization. Only routing is load-bearing; the later stages degrade to
// retaining prior values.
type Pipeline struct {
	store  *vocab.Store
	router *Router
	namer  *Namer
	filler *Filler
	tagger *Tagger
	tmpl   TemplateIntrospector
	gw     *llm.Client
	logger *slog.Logger
}

// New assembles a Pipeline. tmpl may be nil, in which case the field-filling
// stage is skipped entirely.
func New(store *vocab.Store, gw *llm.Client, tmpl TemplateIntrospector, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:  store,
		router: NewRouter(gw, logger),
		namer:  NewNamer(gw, logger),
		filler: NewFiller(gw, logger),
		tagger: NewTagger(gw, logger),
		tmpl:   tmpl,
		gw:     gw,
		logger: logger,
	}
}

// Run processes one extraction summary into a complete payload.
func (pl *Pipeline) Run(ctx context.Context, summary *models.Summary, opts RunOptions) (*Result, error) {
	res, cfg, callOpts, err := pl.route(ctx, summary, opts)
	if err != nil {
		return nil, err
	}
	pl.refine(ctx, cfg, res.Payload, summary, opts, res, callOpts)
	return res, nil
}

// Reroute reprocesses a summary enriched with derived content. The previous
// payload's accumulated state is folded in right after routing so that the
// refinement stages see the merged filenames and attachment links.
func (pl *Pipeline) Reroute(ctx context.Context, prev *models.Payload, summary *models.Summary, opts RunOptions) (*Result, error) {
	res, cfg, callOpts, err := pl.route(ctx, summary, opts)
	if err != nil {
		return nil, err
	}
	MergeReroute(res.Payload, prev)
	pl.refine(ctx, cfg, res.Payload, summary, opts, res, callOpts)
	return res, nil
}

// route runs the load-bearing classification step shared by Run and Reroute.
func (pl *Pipeline) route(ctx context.Context, summary *models.Summary, opts RunOptions) (*Result, *vocab.Config, []llm.CallOption, error) {
	if summary == nil || summary.Empty() {
		return nil, nil, nil, apperr.ErrNoContent
	}
	cfg, err := pl.store.Get()
	if err != nil {
		return nil, nil, nil, err
	}

	var callOpts []llm.CallOption
	if summary.Derived.ASRText != "" {
		callOpts = append(callOpts, llm.WithTimeout(transcriptTimeout))
	}

	p, err := pl.router.Route(ctx, cfg, summary, opts.Source, callOpts...)
	if err != nil {
		return nil, nil, nil, err
	}

	res := &Result{Payload: p}
	res.Stages = append(res.Stages, StageStatus{Stage: "route", Applied: true})
	return res, cfg, callOpts, nil
}

// Retype applies a user-chosen type to an already-routed payload: the type
// is forced, enums reclamped, template fields refilled and tags re-proposed
// for the new type. An unknown type falls back to the configured default.
func (pl *Pipeline) Retype(ctx context.Context, p *models.Payload, summary *models.Summary, newType string) (*Result, error) {
	cfg, err := pl.store.Get()
	if err != nil {
		return nil, err
	}
	p.Type = newType
	enforceType(p, cfg.Types)
	clampEnumFields(p, cfg.Vocabulary)

	res := &Result{Payload: p}
	res.Stages = append(res.Stages, StageStatus{Stage: "retype", Applied: true})
	pl.fillFields(ctx, cfg, p, summary, res, nil)
	applied := pl.tagger.Tag(ctx, cfg, p, summary)
	res.Stages = append(res.Stages, stageStatus("tags", applied, "prior tags normalized"))
	return res, nil
}

// refine runs the best-effort stages after routing.
func (pl *Pipeline) refine(ctx context.Context, cfg *vocab.Config, p *models.Payload, summary *models.Summary, opts RunOptions, res *Result, callOpts []llm.CallOption) {
	maxWords := 0
	if opts.Batch {
		maxWords = batchTitleWords
	}
	applied := pl.namer.Name(ctx, cfg, p, summary, maxWords, callOpts...)
	res.Stages = append(res.Stages, stageStatus("name", applied, "prior title retained"))

	pl.fillFields(ctx, cfg, p, summary, res, callOpts)

	if summary.Derived.ASRText != "" {
		pl.attachTranscript(ctx, cfg, p, summary, res)
	}

	applied = pl.tagger.Tag(ctx, cfg, p, summary, callOpts...)
	res.Stages = append(res.Stages, stageStatus("tags", applied, "router tags normalized"))
}

func (pl *Pipeline) fillFields(ctx context.Context, cfg *vocab.Config, p *models.Payload, summary *models.Summary, res *Result, callOpts []llm.CallOption) {
	if pl.tmpl == nil {
		res.Stages = append(res.Stages, stageStatus("fields", false, "no template introspection"))
		return
	}
	allowed, err := pl.tmpl.Fields(p.Type)
	if err != nil {
		pl.logger.Warn("pipeline: template introspection failed",
			slog.String("type", p.Type),
			slog.String("error", err.Error()))
		res.Stages = append(res.Stages, stageStatus("fields", false, "template unavailable"))
		return
	}
	applied := pl.filler.Fill(ctx, cfg, p, summary, allowed, callOpts...)
	res.Stages = append(res.Stages, stageStatus("fields", applied, "no fields adopted"))
}

// attachTranscript stores the raw transcript on the payload and asks the
// oracle for a short summary of it. The summary is best effort.
func (pl *Pipeline) attachTranscript(ctx context.Context, cfg *vocab.Config, p *models.Payload, summary *models.Summary, res *Result) {
	p.SetField("asr_text", summary.Derived.ASRText)

	prompt, err := cfg.Prompt("asr_summary")
	if err != nil {
		res.Stages = append(res.Stages, stageStatus("asr_summary", false, "prompt unavailable"))
		return
	}
	userJSON, err := json.Marshal(map[string]string{"transcript": summary.Derived.ASRText})
	if err != nil {
		res.Stages = append(res.Stages, stageStatus("asr_summary", false, "encode failed"))
		return
	}
	raw, err := pl.gw.ChatJSONStrict(ctx, prompt, string(userJSON), llm.WithTimeout(transcriptTimeout))
	if err != nil {
		res.Stages = append(res.Stages, stageStatus("asr_summary", false, "oracle unavailable"))
		return
	}
	var resp struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || strings.TrimSpace(resp.Summary) == "" {
		res.Stages = append(res.Stages, stageStatus("asr_summary", false, "unusable response"))
		return
	}
	p.SetField("asr_summary", strings.TrimSpace(resp.Summary))
	res.Stages = append(res.Stages, stageStatus("asr_summary", true, ""))
}

func stageStatus(stage string, applied bool, skipReason string) StageStatus {
	s := StageStatus{Stage: stage, Applied: applied}
	if !applied {
		s.Reason = skipReason
	}
	return s
}
