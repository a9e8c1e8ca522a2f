// Package ingest coordinates a full capture: extraction, classification,
// pending confirmation, rendering, and the final write into the vault.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aeshef/knowledge-bot/internal/extract"
	"github.com/aeshef/knowledge-bot/internal/index"
	"github.com/aeshef/knowledge-bot/internal/models"
	"github.com/aeshef/knowledge-bot/internal/notetmpl"
	"github.com/aeshef/knowledge-bot/internal/pipeline"
	"github.com/aeshef/knowledge-bot/internal/session"
	"github.com/aeshef/knowledge-bot/internal/storage"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

// Notifier receives ingest lifecycle events; the SSE broker implements it.
type Notifier interface {
	PublishIngestEvent(kind, id string, extra map[string]string)
}

// Service runs captures end to end. All mutating entry points go through
// the pending store, so a note only reaches the vault on Confirm.
type Service struct {
	cfg       *vocab.Store
	pipe      *pipeline.Pipeline
	renderer  *notetmpl.Renderer
	vault     *storage.Vault
	db        *index.DB
	pending   *session.Store
	extractor *extract.Service
	notifier  Notifier
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier attaches a lifecycle event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithExtractor overrides the network extractor (tests use a stub client).
func WithExtractor(e *extract.Service) Option {
	return func(s *Service) { s.extractor = e }
}

// New assembles a Service. db may be nil (batch mode without a catalog).
func New(cfg *vocab.Store, pipe *pipeline.Pipeline, renderer *notetmpl.Renderer, vault *storage.Vault, db *index.DB, pending *session.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:       cfg,
		pipe:      pipe,
		renderer:  renderer,
		vault:     vault,
		db:        db,
		pending:   pending,
		extractor: extract.NewService(nil, logger),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestText captures a text message: extract, classify, park as pending.
func (s *Service) IngestText(ctx context.Context, key, text, source string) (*session.Pending, error) {
	summary := s.extractor.Enrich(ctx, extract.FromText(strings.TrimSpace(text)))
	return s.route(ctx, key, summary, source)
}

// IngestURL captures a pasted URL.
func (s *Service) IngestURL(ctx context.Context, key, url, source string) (*session.Pending, error) {
	summary := s.extractor.Enrich(ctx, extract.FromURL(url))
	return s.route(ctx, key, summary, source)
}

// IngestUpload captures a file with an optional caption. The raw bytes are
// saved into the vault's raw shard before classification, so nothing is lost
// even if the capture is cancelled.
func (s *Service) IngestUpload(ctx context.Context, key, name string, content []byte, caption, source string) (*session.Pending, error) {
	rel, err := s.vault.SaveRaw(name, content)
	if err != nil {
		return nil, err
	}

	text := caption
	if text == "" {
		text = name
	}
	summary := s.extractor.Enrich(ctx, extract.FromText(text))
	summary.Meta["file"] = name

	p, err := s.route(ctx, key, summary, source)
	if err != nil {
		return nil, err
	}
	p.Payload.AddFile(rel)
	p.Payload.Filenames = append(p.Payload.Filenames, name)
	p.Payload.RawDir = path.Dir(rel)
	return p, nil
}

func (s *Service) route(ctx context.Context, key string, summary *models.Summary, source string) (*session.Pending, error) {
	res, err := s.pipe.Run(ctx, summary, pipeline.RunOptions{Source: source})
	if err != nil {
		return nil, err
	}
	p := s.pending.Put(key, res.Payload, summary, source)
	s.notify("pending", p.ID, map[string]string{"type": res.Payload.Type, "title": res.Payload.Title})
	s.logger.Info("ingest routed",
		slog.String("id", p.ID),
		slog.String("type", res.Payload.Type),
		slog.String("title", res.Payload.Title))
	return p, nil
}

// AddDerived attaches late extraction output (a transcript, OCR text) to a
// pending ingest and reroutes it; derived content regularly changes the
// classification of an otherwise bare message.
func (s *Service) AddDerived(ctx context.Context, id, channel, text string) (*session.Pending, error) {
	if !models.ValidDerivedChannel(channel) {
		return nil, fmt.Errorf("ingest: unknown derived channel %q", channel)
	}
	p, err := s.pending.Get(id)
	if err != nil {
		return nil, err
	}

	summary := p.Summary.WithDerived(channel, text)
	res, err := s.pipe.Reroute(ctx, p.Payload, summary, pipeline.RunOptions{Source: p.Source})
	if err != nil {
		return nil, err
	}
	if err := s.pending.Update(id, res.Payload, summary); err != nil {
		return nil, err
	}
	s.notify("updated", id, map[string]string{"type": res.Payload.Type, "channel": channel})
	return s.pending.Get(id)
}

// SetType applies a user-chosen note type to a pending ingest.
func (s *Service) SetType(ctx context.Context, id, newType string) (*session.Pending, error) {
	p, err := s.pending.Get(id)
	if err != nil {
		return nil, err
	}
	res, err := s.pipe.Retype(ctx, p.Payload, p.Summary, newType)
	if err != nil {
		return nil, err
	}
	if err := s.pending.Update(id, res.Payload, p.Summary); err != nil {
		return nil, err
	}
	s.notify("updated", id, map[string]string{"type": res.Payload.Type})
	return s.pending.Get(id)
}

// Get returns a pending ingest for preview.
func (s *Service) Get(id string) (*session.Pending, error) {
	return s.pending.Get(id)
}

// Preview renders a pending ingest without writing anything, so clients can
// show the exact note the user is about to confirm.
func (s *Service) Preview(id string) (string, error) {
	p, err := s.pending.Get(id)
	if err != nil {
		return "", err
	}
	return s.renderer.Render(p.Payload)
}

// Confirm renders a pending ingest and writes it into the vault, returning
// the vault-relative note path. The pending entry is consumed.
func (s *Service) Confirm(ctx context.Context, id string) (string, error) {
	p, err := s.pending.Take(id)
	if err != nil {
		return "", err
	}

	notePath, err := s.Commit(ctx, p.Payload)
	if err != nil {
		// The capture is gone from the store; losing it on a render or
		// write failure would drop user content.
		s.pending.Put(p.Key, p.Payload, p.Summary, p.Source)
		return "", err
	}
	s.notify("committed", id, map[string]string{"path": notePath})
	return notePath, nil
}

// Cancel drops a pending ingest without writing anything.
func (s *Service) Cancel(id string) error {
	if _, err := s.pending.Take(id); err != nil {
		return err
	}
	s.notify("cancelled", id, nil)
	return nil
}

// Commit renders a payload and writes the note, bypassing the pending store
// (batch mode commits directly).
func (s *Service) Commit(_ context.Context, payload *models.Payload) (string, error) {
	cfg, err := s.cfg.Get()
	if err != nil {
		return "", err
	}
	rendered, err := s.renderer.Render(payload)
	if err != nil {
		return "", err
	}
	typeDir := cfg.Types.DirFor(payload.Type)
	notePath, err := s.vault.WriteNote(typeDir, payload.Title, rendered)
	if err != nil {
		return "", err
	}
	if s.db != nil {
		if err := index.IndexNote(s.db, notePath, []byte(rendered), time.Now()); err != nil {
			s.logger.Warn("ingest: catalog update failed",
				slog.String("path", notePath),
				slog.String("error", err.Error()))
		}
	}
	s.logger.Info("note committed",
		slog.String("path", notePath),
		slog.String("type", payload.Type))
	return notePath, nil
}

func (s *Service) notify(kind, id string, extra map[string]string) {
	if s.notifier != nil {
		s.notifier.PublishIngestEvent(kind, id, extra)
	}
}
