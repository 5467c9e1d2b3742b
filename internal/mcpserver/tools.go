package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// Tool names.
const (
	ToolStore      = "store_memory"
	ToolRetrieve   = "retrieve_memory"
	ToolGet        = "get_memory"
	ToolDelete     = "delete_memory"
	ToolList       = "list_memories"
	ToolSyncStatus = "sync_status"
)

const (
	defaultResults = 5
	maxResults     = 100
	defaultPage    = 20
	maxPage        = 1000
)

type toolDef struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

func (s *Server) tools() []toolDef {
	return []toolDef{
		{
			tool: mcp.NewTool(ToolStore,
				mcp.WithDescription("Store a memory and return its id."),
				mcp.WithString("content", mcp.Required(), mcp.Description("Text to remember")),
				mcp.WithArray("tags", mcp.Description("Tags to attach"), mcp.WithStringItems()),
				mcp.WithObject("metadata", mcp.Description("Scalar key/value metadata")),
			),
			handler: s.handleStore,
		},
		{
			tool: mcp.NewTool(ToolRetrieve,
				mcp.WithDescription("Semantic search over stored memories, most similar first."),
				mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
				mcp.WithNumber("n_results", mcp.Description("Maximum results (default 5)")),
				mcp.WithArray("tags", mcp.Description("Only memories carrying one of these tags"), mcp.WithStringItems()),
				mcp.WithObject("metadata", mcp.Description("Only memories whose metadata holds these values")),
				mcp.WithString("expr", mcp.Description("CEL filter over content, tags, metadata and created_at")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			handler: s.handleRetrieve,
		},
		{
			tool: mcp.NewTool(ToolGet,
				mcp.WithDescription("Fetch one memory by id."),
				mcp.WithString("id", mcp.Required()),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			handler: s.handleGet,
		},
		{
			tool: mcp.NewTool(ToolDelete,
				mcp.WithDescription("Delete a memory by id. Deleting an unknown id succeeds."),
				mcp.WithString("id", mcp.Required()),
				mcp.WithDestructiveHintAnnotation(true),
				mcp.WithIdempotentHintAnnotation(true),
			),
			handler: s.handleDelete,
		},
		{
			tool: mcp.NewTool(ToolList,
				mcp.WithDescription("List memories in creation order."),
				mcp.WithNumber("offset", mcp.Description("Records to skip")),
				mcp.WithNumber("limit", mcp.Description("Maximum records (default 20)")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			handler: s.handleList,
		},
		{
			tool: mcp.NewTool(ToolSyncStatus,
				mcp.WithDescription("Report the background sync state of a hybrid backend."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			handler: s.handleSyncStatus,
		},
	}
}

func (s *Server) handleStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	meta, err := objectArg(req, "metadata")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.backend.Store(ctx, memory.Entry{
		Content:  content,
		Tags:     req.GetStringSlice("tags", nil),
		Metadata: meta,
	})
	if err != nil {
		return s.failure(ToolStore, err)
	}
	return jsonResult(map[string]string{"id": id})
}

func (s *Server) handleRetrieve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	meta, err := objectArg(req, "metadata")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n := clamp(req.GetInt("n_results", defaultResults), defaultResults, maxResults)
	f := &memory.Filter{
		Tags:     req.GetStringSlice("tags", nil),
		Metadata: meta,
		Expr:     req.GetString("expr", ""),
	}
	if f.IsZero() {
		f = nil
	}
	results, err := s.backend.Search(ctx, query, n, f)
	if err != nil {
		return s.failure(ToolRetrieve, err)
	}
	return jsonResult(results)
}

func (s *Server) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.backend.Get(ctx, id)
	if err != nil {
		return s.failure(ToolGet, err)
	}
	return jsonResult(rec)
}

func (s *Server) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return s.failure(ToolDelete, err)
	}
	return jsonResult(map[string]any{"id": id, "deleted": true})
}

func (s *Server) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	offset := max(req.GetInt("offset", 0), 0)
	limit := clamp(req.GetInt("limit", defaultPage), defaultPage, maxPage)
	recs, err := s.backend.List(ctx, offset, limit)
	if err != nil {
		return s.failure(ToolList, err)
	}
	return jsonResult(recs)
}

func (s *Server) handleSyncStatus(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.sync == nil {
		return jsonResult(map[string]any{
			"enabled": false,
			"backend": s.backend.Kind(),
		})
	}
	return jsonResult(s.sync.Status())
}

// failure turns a backend error into a tool error result. Caller mistakes
// are reported as is; anything else is logged as well.
func (s *Server) failure(tool string, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, memory.ErrNotFound),
		errors.Is(err, memory.ErrInvalidEntry),
		errors.Is(err, memory.ErrInvalidFilter):
	default:
		s.logger.Error("tool call failed", "tool", tool, "error", err)
	}
	return mcp.NewToolResultError(err.Error()), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// objectArg returns an object argument, accepting a JSON-encoded string
// from clients that cannot send nested objects.
func objectArg(req mcp.CallToolRequest, key string) (map[string]any, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("%s must be a JSON object: %w", key, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%s must be an object", key)
	}
}

func clamp(n, def, hi int) int {
	if n <= 0 {
		return def
	}
	return min(n, hi)
}
