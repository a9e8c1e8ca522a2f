package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aeshef/knowledge-bot/internal/apperr"
	"github.com/aeshef/knowledge-bot/internal/index"
	"github.com/aeshef/knowledge-bot/internal/ingest"
	"github.com/aeshef/knowledge-bot/internal/session"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

// Handler holds API route handlers.
type Handler struct {
	svc *ingest.Service
	db  *index.DB
	cfg *vocab.Store
}

// NewHandler creates a new Handler.
func NewHandler(svc *ingest.Service, db *index.DB, cfg *vocab.Store) *Handler {
	return &Handler{svc: svc, db: db, cfg: cfg}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{ Validate() error }) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json"))
		return false
	}
	if err := dst.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// Ingest handles POST /api/ingest: classify one input and park it pending
// confirmation.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	var (
		p   *session.Pending
		err error
	)
	switch {
	case req.Text != "":
		p, err = h.svc.IngestText(ctx, req.SessionKey, req.Text, "api")
	case req.URL != "":
		p, err = h.svc.IngestURL(ctx, req.SessionKey, req.URL, "api")
	default:
		var content []byte
		content, err = base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("content is not valid base64"))
			return
		}
		p, err = h.svc.IngestUpload(ctx, req.SessionKey, req.FileName, content, req.Caption, "api")
	}
	if err != nil {
		h.ingestError(w, err)
		return
	}
	h.respondPending(w, http.StatusAccepted, p)
}

// respondPending writes a pending capture with its rendered preview. A
// preview render failure is not fatal; the payload alone is still useful.
func (h *Handler) respondPending(w http.ResponseWriter, status int, p *session.Pending) {
	rendered, err := h.svc.Preview(p.ID)
	if err != nil {
		slog.Warn("preview render failed",
			slog.String("id", p.ID),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, pendingResponse(p, rendered))
}

func (h *Handler) ingestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNoContent):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("no usable content"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	default:
		slog.Error("ingest failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// GetPending handles GET /api/ingest/{id}.
func (h *Handler) GetPending(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.ingestError(w, err)
		return
	}
	h.respondPending(w, http.StatusOK, p)
}

// AddDerived handles POST /api/ingest/{id}/derived.
func (h *Handler) AddDerived(w http.ResponseWriter, r *http.Request) {
	var req DerivedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.svc.AddDerived(r.Context(), chi.URLParam(r, "id"), req.Channel, req.Text)
	if err != nil {
		h.ingestError(w, err)
		return
	}
	h.respondPending(w, http.StatusOK, p)
}

// SetType handles POST /api/ingest/{id}/type.
func (h *Handler) SetType(w http.ResponseWriter, r *http.Request) {
	var req TypeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.svc.SetType(r.Context(), chi.URLParam(r, "id"), req.Type)
	if err != nil {
		h.ingestError(w, err)
		return
	}
	h.respondPending(w, http.StatusOK, p)
}

// Confirm handles POST /api/ingest/{id}/confirm.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.Confirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.ingestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommitResponse{Path: path})
}

// Cancel handles POST /api/ingest/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(chi.URLParam(r, "id")); err != nil {
		h.ingestError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListNotes handles GET /api/notes with optional type filter and limit.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	notes, err := h.db.ListNotes(q.Get("type"), limit)
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if notes == nil {
		notes = []index.NoteRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

// Search handles GET /api/search?q=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.db.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ListTypes handles GET /api/types.
func (h *Handler) ListTypes(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.cfg.Get()
	if err != nil {
		slog.Error("config load failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	counts, err := h.db.CountByType()
	if err != nil {
		counts = map[string]int{}
	}

	out := make([]TypeInfo, 0, len(cfg.Types.Names()))
	for _, name := range cfg.Types.Names() {
		out = append(out, TypeInfo{
			Name:    name,
			Dir:     cfg.Types.DirFor(name),
			Default: name == cfg.Types.DefaultType(),
			Count:   counts[name],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": out})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
