package connector

import (
	"context"
	"sort"
	"strings"

	apperrors "parley/internal/errors"
	"parley/internal/shared/logging"
)

// Resolver validates a caller's requested connector names against their
// available set and binds the callable handlers for exactly those
// connectors. Resolution is fail-closed: a single unavailable connector
// fails the whole request.
type Resolver struct {
	directory Directory
	fetcher   HandlerFetcher
	logger    logging.Logger
}

// NewResolver constructs a resolver over the given collaborators.
func NewResolver(directory Directory, fetcher HandlerFetcher, logger logging.Logger) *Resolver {
	return &Resolver{directory: directory, fetcher: fetcher, logger: logging.OrNop(logger)}
}

// NormalizeToolkits trims, case-folds to upper case, and deduplicates the
// requested names, preserving first-occurrence order. Empty entries are
// dropped.
func NormalizeToolkits(requested []string) []string {
	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, raw := range requested {
		name := strings.ToUpper(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Resolve validates the request and returns the bound tool set.
func (r *Resolver) Resolve(ctx context.Context, userID string, requested []string) (*ToolSet, error) {
	names := NormalizeToolkits(requested)
	if len(names) == 0 {
		return nil, apperrors.NewValidationError("toolkits", "at least one connector must be requested")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, &apperrors.AuthenticationRequiredError{}
	}

	toolkits, err := r.directory.Toolkits(ctx, userID)
	if err != nil {
		return nil, err
	}
	available := make(map[string]struct{}, len(toolkits))
	for _, tk := range toolkits {
		if tk.Available() {
			available[strings.ToUpper(strings.TrimSpace(tk.Name))] = struct{}{}
		}
	}

	var missing []string
	for _, name := range names {
		if _, ok := available[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &apperrors.UnavailableConnectorError{Names: missing}
	}

	handlers, err := r.fetcher.FetchHandlers(ctx, userID, names)
	if err != nil {
		return nil, err
	}

	invocable := make(map[string]Handler, len(handlers))
	for toolName, h := range handlers {
		if h == nil || toolName == "" {
			r.logger.Warn("dropping non-invocable handler %q", toolName)
			continue
		}
		invocable[toolName] = h
	}
	if len(invocable) == 0 {
		return nil, &apperrors.NoToolsAvailableError{Toolkits: names}
	}

	r.logger.Debug("resolved %d tools across connectors %v", len(invocable), names)
	return NewToolSet(names, invocable), nil
}
