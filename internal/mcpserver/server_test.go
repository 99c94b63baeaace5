package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/demotape/internal/index"
	"github.com/starford/demotape/internal/notestore"
	"github.com/starford/demotape/internal/testutil"
)

func testServer(t *testing.T) (*Server, *notestore.Store) {
	t.Helper()
	db := testutil.TestDB(t)
	store := testutil.TestStore(t, notestore.WithListener(index.Listener(db, testutil.Logger())))
	ed := testutil.TestEditor(t, store)
	return New(ed, db, nil), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "apply_sections":
		result, err = srv.applySections(ctx, req)
	case "import_markdown":
		result, err = srv.importMarkdown(ctx, req)
	case "attach_take":
		result, err = srv.attachTake(ctx, req)
	case "undo":
		result, err = srv.undo(ctx, req)
	case "redo":
		result, err = srv.redo(ctx, req)
	case "get_section_format":
		result, err = srv.getSectionFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func createNote(t *testing.T, srv *Server, title string) noteSummary {
	t.Helper()
	r := callTool(t, srv, "create_note", map[string]interface{}{"title": title})
	if r.IsError {
		t.Fatalf("create_note: %s", resultText(r))
	}
	var n noteSummary
	if err := json.Unmarshal([]byte(resultText(r)), &n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestCreateApplyAndRead(t *testing.T) {
	srv, _ := testServer(t)
	n := createNote(t, srv, "Night drive")
	if n.Title != "Night drive" || n.Sections != 1 {
		t.Fatalf("created = %+v", n)
	}

	r := callTool(t, srv, "apply_sections", map[string]interface{}{
		"id":       n.ID,
		"sections": `[{"type":"Verse","content":"headlights"},{"type":"Chorus","content":"keep driving"}]`,
	})
	if r.IsError {
		t.Fatalf("apply_sections: %s", resultText(r))
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"id": n.ID})
	text := resultText(r)
	for _, want := range []string{"title: Night drive", "## Verse\n\nheadlights", "## Chorus\n\nkeep driving"} {
		if !strings.Contains(text, want) {
			t.Errorf("read_note missing %q:\n%s", want, text)
		}
	}
}

func TestApplyMalformedFallsBack(t *testing.T) {
	srv, store := testServer(t)
	n := createNote(t, srv, "Raw")
	r := callTool(t, srv, "apply_sections", map[string]interface{}{"id": n.ID, "sections": "just some words"})
	if r.IsError {
		t.Fatalf("apply_sections: %s", resultText(r))
	}
	got, _ := store.Get(n.ID)
	if len(got.Sections) != 1 || got.Sections[0].Content != "just some words" {
		t.Errorf("sections = %+v", got.Sections)
	}
}

func TestUndoRedo(t *testing.T) {
	srv, store := testServer(t)
	n := createNote(t, srv, "Steps")
	_ = callTool(t, srv, "apply_sections", map[string]interface{}{"id": n.ID, "sections": `[{"type":"Bridge","content":"b"}]`})

	_ = callTool(t, srv, "undo", map[string]interface{}{"id": n.ID})
	got, _ := store.Get(n.ID)
	if got.Sections[0].Type != "Verse" || got.Sections[0].Content != "" {
		t.Errorf("after undo = %+v", got.Sections)
	}

	_ = callTool(t, srv, "redo", map[string]interface{}{"id": n.ID})
	got, _ = store.Get(n.ID)
	if got.Sections[0].Type != "Bridge" {
		t.Errorf("after redo = %+v", got.Sections)
	}

	r := callTool(t, srv, "undo", map[string]interface{}{"id": "missing"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestImportAndSearch(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "import_markdown", map[string]interface{}{
		"content": "---\ntitle: Harbor\n---\n## Verse\n\nfoghorn at dawn\n",
	})
	if r.IsError {
		t.Fatalf("import_markdown: %s", resultText(r))
	}

	r = callTool(t, srv, "search_notes", map[string]interface{}{"query": "foghorn"})
	if !strings.Contains(resultText(r), `"title": "Harbor"`) {
		t.Errorf("search = %s", resultText(r))
	}

	r = callTool(t, srv, "list_notes", map[string]interface{}{})
	var list []noteSummary
	_ = json.Unmarshal([]byte(resultText(r)), &list)
	if len(list) != 1 || list[0].Title != "Harbor" {
		t.Errorf("list = %+v", list)
	}
}

func TestAttachTake(t *testing.T) {
	srv, store := testServer(t)
	n := createNote(t, srv, "Takes")
	webm := append([]byte{0x1A, 0x45, 0xDF, 0xA3}, make([]byte, 64)...)

	r := callTool(t, srv, "attach_take", map[string]interface{}{
		"id":            n.ID,
		"section_index": float64(0),
		"audio":         "data:audio/webm;base64," + base64.StdEncoding.EncodeToString(webm),
	})
	if r.IsError {
		t.Fatalf("attach_take: %s", resultText(r))
	}
	got, _ := store.Get(n.ID)
	if len(got.Sections[0].Takes) != 1 || got.Sections[0].Takes[0].MimeType != "audio/webm" {
		t.Errorf("takes = %+v", got.Sections[0].Takes)
	}

	r = callTool(t, srv, "attach_take", map[string]interface{}{
		"id":            n.ID,
		"section_index": float64(0),
		"audio":         "data:audio/ogg;base64," + base64.StdEncoding.EncodeToString(webm),
	})
	if !r.IsError {
		t.Error("mismatched content type should be rejected")
	}

	r = callTool(t, srv, "attach_take", map[string]interface{}{
		"id":            n.ID,
		"section_index": float64(3),
		"audio":         "data:audio/webm;base64," + base64.StdEncoding.EncodeToString(webm),
	})
	if !r.IsError {
		t.Error("out of range section should be rejected")
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestSectionFormatContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_section_format", nil)
	if !strings.Contains(resultText(r), "apply_sections") {
		t.Error("contract should describe apply_sections")
	}
}
