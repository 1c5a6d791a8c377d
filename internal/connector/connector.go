// Package connector models external integrations (email, calendar, workspace
// tools) and resolves a caller's requested connectors into a bound,
// immutable set of callable tool handlers.
package connector

import (
	"context"

	"parley/internal/llm"
)

// Toolkit describes one connector as seen by a specific caller.
type Toolkit struct {
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
}

// Available reports whether the toolkit can serve a delegated run.
func (t Toolkit) Available() bool {
	return t.Enabled && t.Connected
}

// Handler is one callable tool exposed by a connector.
type Handler interface {
	// Name returns the tool's wire name, unique within a resolved set.
	Name() string
	// Definition returns the schema advertised to the model.
	Definition() llm.ToolDefinition
	// Invoke executes the tool and returns its textual output.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Directory lists the toolkits visible to a caller. It is an external
// collaborator; implementations typically sit in front of an account store.
type Directory interface {
	Toolkits(ctx context.Context, userID string) ([]Toolkit, error)
}

// HandlerFetcher fetches the callable handlers behind a set of connector
// names. It is an I/O boundary; the resolver validates around it.
type HandlerFetcher interface {
	FetchHandlers(ctx context.Context, userID string, toolkitNames []string) (map[string]Handler, error)
}
