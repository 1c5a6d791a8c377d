package connector

import (
	"context"
	"fmt"
	"sort"

	"parley/internal/llm"
)

// ToolSet is the bound, immutable mapping from tool name to handler built
// once per delegated run. It is never shared across runs and is discarded
// when the run ends.
type ToolSet struct {
	toolkits []string
	handlers map[string]Handler
}

// NewToolSet builds a set over the given handlers. The toolkit names record
// which connectors the set was resolved from.
func NewToolSet(toolkits []string, handlers map[string]Handler) *ToolSet {
	owned := make(map[string]Handler, len(handlers))
	for name, h := range handlers {
		owned[name] = h
	}
	return &ToolSet{toolkits: append([]string(nil), toolkits...), handlers: owned}
}

// ToolkitNames returns the connector names this set was resolved from.
func (s *ToolSet) ToolkitNames() []string {
	return append([]string(nil), s.toolkits...)
}

// Names returns the tool names in deterministic order.
func (s *ToolSet) Names() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of bound tools.
func (s *ToolSet) Len() int { return len(s.handlers) }

// Definitions returns the tool schemas advertised to the model, in
// deterministic order.
func (s *ToolSet) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(s.handlers))
	for _, name := range s.Names() {
		defs = append(defs, s.handlers[name].Definition())
	}
	return defs
}

// Invoke executes the named tool.
func (s *ToolSet) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	h, ok := s.handlers[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return h.Invoke(ctx, args)
}
