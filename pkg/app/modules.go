package app

// Compiled-in modules. Each registers itself with the core registry.
import (
	_ "github.com/Hkesd/mcp-memory-service/internal/backend"
	_ "github.com/Hkesd/mcp-memory-service/internal/gateway"
)
