// Package mcpserver exposes a memory backend as Model Context Protocol
// tools over stdio.
package mcpserver

import (
	"context"
	"io"
	"log"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// Name is the server name announced during the MCP handshake.
const Name = "memoryd"

// Syncer reports the background sync state of a hybrid backend.
type Syncer interface {
	Status() hybrid.SyncStatus
}

// Server holds the MCP server and the backend its tools call.
type Server struct {
	backend memory.Backend
	sync    Syncer
	logger  *slog.Logger
	version string
	mcp     *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSync sets the coordinator reported by sync_status.
func WithSync(sy Syncer) Option {
	return func(s *Server) { s.sync = sy }
}

// WithVersion sets the version announced to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New builds a server whose tools operate on b.
func New(b memory.Backend, opts ...Option) *Server {
	s := &Server{
		backend: b,
		logger:  slog.New(slog.DiscardHandler),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcp = server.NewMCPServer(Name, s.version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Persistent semantic memory. Store facts with store_memory and recall them with retrieve_memory."),
	)
	for _, t := range s.tools() {
		s.mcp.AddTool(t.tool, t.handler)
	}
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Serve speaks MCP over in and out until ctx is cancelled or in reaches EOF.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(&logWriter{logger: s.logger}, "", 0))
	s.logger.Info("mcp server listening on stdio", "backend", s.backend.Kind())
	return stdio.Listen(ctx, in, out)
}

// logWriter forwards the stdio server's log output to slog.
type logWriter struct {
	logger *slog.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.logger.Warn("mcp stdio", "message", msg)
	return len(p), nil
}
