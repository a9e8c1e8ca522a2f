// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes capture and catalog tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aeshef/knowledge-bot/internal/index"
	"github.com/aeshef/knowledge-bot/internal/ingest"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

// mcpSessionKey namespaces pending entries created over MCP so they never
// collide with chat or HTTP sessions.
const mcpSessionKey = "mcp"

// Server wraps the MCP server with capture tools.
type Server struct {
	mcp *server.MCPServer
	svc *ingest.Service
	db  *index.DB
	cfg *vocab.Store
}

// New creates a new MCP server with all tools registered.
func New(svc *ingest.Service, db *index.DB, cfg *vocab.Store) *Server {
	s := &Server{svc: svc, db: db, cfg: cfg}

	s.mcp = server.NewMCPServer(
		"knowledge-bot",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("capture_note",
		mcp.WithDescription("Capture a piece of text into the vault: the content is "+
			"classified, titled, tagged and committed as a Markdown note. Returns the "+
			"note path and the resolved metadata."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Raw text or URL to capture")),
		mcp.WithString("type", mcp.Description("Optional note type override (see list_note_types)")),
	), s.captureNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through committed notes."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List committed notes, newest first."),
		mcp.WithString("type", mcp.Description("Optional note type filter")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("list_note_types",
		mcp.WithDescription("List the configured note types with their vault directories "+
			"and current note counts."),
	), s.listNoteTypes)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource("kb://note-format", "Note Format Contract",
			mcp.WithResourceDescription("Canonical Markdown note format produced by the capture pipeline."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) captureNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ingestFn := s.svc.IngestText
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		ingestFn = s.svc.IngestURL
	}
	p, err := ingestFn(ctx, mcpSessionKey, text, "mcp")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if forced, err := req.RequireString("type"); err == nil && forced != "" {
		if p, err = s.svc.SetType(ctx, p.ID, forced); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	// MCP callers are synchronous; commit immediately instead of parking
	// the capture for confirmation.
	notePath, err := s.svc.Confirm(ctx, p.ID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, _ := json.MarshalIndent(map[string]any{
		"path":    notePath,
		"payload": p.Payload,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.db.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeFilter := ""
	if f, err := req.RequireString("type"); err == nil {
		typeFilter = f
	}

	rows, err := s.db.ListNotes(typeFilter, 50)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var lines []string
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", r.Path, r.Type, r.Title))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) listNoteTypes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := s.cfg.Get()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	counts, err := s.db.CountByType()
	if err != nil {
		counts = map[string]int{}
	}

	var lines []string
	for _, name := range cfg.Types.Names() {
		line := fmt.Sprintf("%s -> %s (%d notes)", name, cfg.Types.DirFor(name), counts[name])
		if name == cfg.Types.DefaultType() {
			line += " [default]"
		}
		lines = append(lines, line)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "kb://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
