package connector

import (
	"context"
	"strings"

	"parley/internal/llm"
)

// FuncHandler adapts a function to the Handler interface.
type FuncHandler struct {
	ToolName string
	Def      llm.ToolDefinition
	Fn       func(ctx context.Context, args map[string]any) (string, error)
}

func (h *FuncHandler) Name() string { return h.ToolName }

func (h *FuncHandler) Definition() llm.ToolDefinition { return h.Def }

func (h *FuncHandler) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return h.Fn(ctx, args)
}

// StaticCatalog is an in-process Directory and HandlerFetcher backed by a
// fixed toolkit table. It serves local development and tests; production
// deployments wire a real account-backed directory instead.
type StaticCatalog struct {
	toolkits []Toolkit
	handlers map[string][]Handler // toolkit name (upper) -> handlers
}

// NewStaticCatalog creates an empty catalog.
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{handlers: make(map[string][]Handler)}
}

// AddToolkit registers a toolkit and its handlers. The name is case-folded.
func (c *StaticCatalog) AddToolkit(tk Toolkit, handlers ...Handler) *StaticCatalog {
	name := strings.ToUpper(strings.TrimSpace(tk.Name))
	tk.Name = name
	c.toolkits = append(c.toolkits, tk)
	c.handlers[name] = append(c.handlers[name], handlers...)
	return c
}

// Toolkits implements Directory. Every caller sees the same catalog.
func (c *StaticCatalog) Toolkits(ctx context.Context, userID string) ([]Toolkit, error) {
	return append([]Toolkit(nil), c.toolkits...), nil
}

// FetchHandlers implements HandlerFetcher.
func (c *StaticCatalog) FetchHandlers(ctx context.Context, userID string, toolkitNames []string) (map[string]Handler, error) {
	out := make(map[string]Handler)
	for _, name := range toolkitNames {
		for _, h := range c.handlers[strings.ToUpper(strings.TrimSpace(name))] {
			out[h.Name()] = h
		}
	}
	return out, nil
}
