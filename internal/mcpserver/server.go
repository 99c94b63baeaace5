// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes demotape notes to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/demotape/internal/apperr"
	"github.com/starford/demotape/internal/editor"
	"github.com/starford/demotape/internal/index"
	"github.com/starford/demotape/internal/markdown"
	"github.com/starford/demotape/internal/models"
	"github.com/starford/demotape/internal/notestore"
	"github.com/starford/demotape/internal/recorder"
)

const contractURI = "demotape://section-format"

// Server wraps the MCP server with demotape tools.
type Server struct {
	mcp    *server.MCPServer
	editor *editor.Coordinator
	store  *notestore.Store
	db     index.NoteIndex
	prober recorder.DurationProber
}

// New creates a new MCP server with all tools registered. db and prober may
// be nil.
func New(ed *editor.Coordinator, db index.NoteIndex, prober recorder.DurationProber) *Server {
	s := &Server{editor: ed, store: ed.Store(), db: db, prober: prober}

	s.mcp = server.NewMCPServer(
		"demotape",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List song notes, most recently modified first."),
		mcp.WithString("project", mcp.Description("Optional project id to filter by")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note as Markdown with YAML frontmatter."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles and section text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("project", mcp.Description("Optional project id to filter by")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create an empty note and make it active."),
		mcp.WithString("title", mcp.Description("Optional title")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("apply_sections",
		mcp.WithDescription("Apply a JSON array of {type, content} sections to a note. "+
			"Read the contract first via get_section_format or the "+contractURI+" resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("sections", mcp.Required(), mcp.Description("JSON array of sections")),
		mcp.WithString("transcript", mcp.Description("Optional source transcript kept on the note")),
	), s.applySections)

	s.mcp.AddTool(mcp.NewTool("import_markdown",
		mcp.WithDescription("Create a note from Markdown with \"## Type\" section headings."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown document")),
	), s.importMarkdown)

	s.mcp.AddTool(mcp.NewTool("attach_take",
		mcp.WithDescription("Attach an audio recording to a section as a new take."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithNumber("section_index", mcp.Required(), mcp.Description("Zero-based section index")),
		mcp.WithString("audio", mcp.Required(), mcp.Description("Base64 data URI, e.g. data:audio/webm;base64,...")),
	), s.attachTake)

	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last recorded change to a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.undo)

	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone change to a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.redo)

	s.mcp.AddTool(mcp.NewTool("get_section_format",
		mcp.WithDescription("Returns the section JSON and Markdown contract."),
	), s.getSectionFormat)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Section Format Contract",
			mcp.WithResourceDescription("Section JSON and Markdown shapes accepted by the note tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

type noteSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ProjectID string    `json:"projectId,omitempty"`
	Sections  int       `json:"sections"`
	Takes     int       `json:"takes"`
	Timestamp time.Time `json:"timestamp"`
}

func summarize(n models.Note) noteSummary {
	return noteSummary{
		ID:        n.ID,
		Title:     n.Title,
		ProjectID: n.ProjectID,
		Sections:  len(n.Sections),
		Takes:     len(n.TakeIDs()),
		Timestamp: n.Timestamp,
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("note not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := req.GetString("project", "")
	out := []noteSummary{}
	for _, n := range s.store.ListByRecency() {
		if project != "" && n.ProjectID != project {
			continue
		}
		out = append(out, summarize(n))
	}
	return jsonResult(out), nil
}

func (s *Server) readNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.store.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	var project *models.Project
	if n.ProjectID != "" {
		if p, pErr := s.store.Project(n.ProjectID); pErr == nil {
			project = &p
		}
	}
	data, err := markdown.Render(n, project)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) searchNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.db == nil {
		return mcp.NewToolResultError("search index disabled"), nil
	}
	results, err := s.db.Search(index.Query{Text: query, ProjectID: req.GetString("project", "")})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	return jsonResult(results), nil
}

func (s *Server) createNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := s.store.Create()
	if title := req.GetString("title", ""); title != "" {
		renamed, err := s.store.Rename(n.ID, title)
		if err != nil {
			return toolError(err), nil
		}
		n = renamed
	}
	return jsonResult(summarize(n)), nil
}

func (s *Server) applySections(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("sections")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.editor.ApplyAIResponse(id, req.GetString("transcript", ""), raw)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(summarize(n)), nil
}

func (s *Server) importMarkdown(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.editor.ImportMarkdown([]byte(content))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(summarize(n)), nil
}

func (s *Server) undo(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.step(req, s.editor.Undo)
}

func (s *Server) redo(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.step(req, s.editor.Redo)
}

func (s *Server) step(req mcp.CallToolRequest, fn func(string) (models.Note, error)) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := fn(id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(summarize(n)), nil
}

func (s *Server) getSectionFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SectionFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     SectionFormatContract,
		},
	}, nil
}
