// Package delegate runs bounded, tool-scoped delegated agents on behalf of
// a parent conversation and reports a terminal analysis for each run.
package delegate

import (
	"fmt"
	"strings"

	"parley/internal/config"
	apperrors "parley/internal/errors"
)

// Request describes one delegated task.
type Request struct {
	Toolkits []string `json:"toolkits"`
	Task     string   `json:"task"`
	Context  string   `json:"context,omitempty"`
}

// Validate checks the request against the configured limits. Toolkit
// membership is validated later by the resolver; this only covers shape.
func (r *Request) Validate(limits config.DelegateConfig) error {
	task := strings.TrimSpace(r.Task)
	if task == "" {
		return apperrors.NewValidationError("task", "task must not be empty")
	}
	if len(r.Task) > limits.MaxTaskChars {
		return apperrors.NewValidationError("task",
			fmt.Sprintf("task exceeds %d characters", limits.MaxTaskChars))
	}
	if len(r.Context) > limits.MaxContextChars {
		return apperrors.NewValidationError("context",
			fmt.Sprintf("context exceeds %d characters", limits.MaxContextChars))
	}
	if len(r.Toolkits) == 0 {
		return apperrors.NewValidationError("toolkits", "at least one connector must be requested")
	}
	return nil
}
