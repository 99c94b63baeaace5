package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/demotape/internal/audio"
	"github.com/starford/demotape/internal/models"
)

type attachResult struct {
	NoteID     string `json:"noteId"`
	TakeID     string `json:"takeId"`
	MimeType   string `json:"mimeType"`
	DurationMs int64  `json:"durationMs"`
	Size       int    `json:"size"`
}

func (s *Server) attachTake(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	index, err := req.RequireInt("section_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	uri, err := req.RequireString("audio")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, declared, err := audio.DecodeDataURI(uri)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mime, err := audio.Validate(data, declared)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	take := models.AudioTake{
		ID:        uuid.NewString(),
		AudioData: base64.StdEncoding.EncodeToString(data),
		MimeType:  mime,
		Timestamp: s.store.Now(),
	}
	if s.prober != nil {
		if d, probeErr := s.prober.Duration(ctx, data, mime); probeErr == nil {
			take.DurationMs = d.Milliseconds()
		}
	}

	if _, err := s.editor.AttachTake(id, index, take); err != nil {
		return toolError(err), nil
	}
	out, _ := json.Marshal(attachResult{
		NoteID:     id,
		TakeID:     take.ID,
		MimeType:   take.MimeType,
		DurationMs: take.DurationMs,
		Size:       len(data),
	})
	return mcp.NewToolResultText(string(out)), nil
}
