package delegate

import (
	"strings"

	apperrors "parley/internal/errors"
	"parley/internal/stream"
)

const summaryLimit = 300

// issueNoToolsCalled is part of the analysis contract consumers match on.
const issueNoToolsCalled = "No tools were called"

// outcome is the raw material an analysis is derived from.
type outcome struct {
	toolCallCount int
	toolNames     []string
	finishReason  stream.FinishReason
	output        string
	capturedErr   error
}

// computeAnalysis derives the terminal verdict from an observed run.
// Success is the conjunction of four checks: tools were attempted, the run
// finished normally, the output is substantial, and no error was captured.
// Issues are collected in a fixed order so consumers can rely on the
// error-derived message appearing first.
func computeAnalysis(o outcome, substantialChars int) stream.Analysis {
	trimmed := strings.TrimSpace(o.output)

	attemptedTools := o.toolCallCount > 0
	normalFinish := o.finishReason == stream.FinishStop || o.finishReason == stream.FinishLength
	hasSubstantialOutput := len(trimmed) > substantialChars
	hasError := o.capturedErr != nil

	var issues []string
	var errMsg string
	if hasError {
		errMsg = o.capturedErr.Error()
		if c := apperrors.ClassifyProviderError(o.capturedErr); c.Kind != apperrors.ProviderErrorUnknown {
			errMsg = c.Message
			if c.SuggestFallback {
				errMsg += " A fallback credential or provider is recommended."
			}
		}
		issues = append(issues, errMsg)
	}
	if !attemptedTools {
		issues = append(issues, issueNoToolsCalled)
	}
	if o.finishReason == stream.FinishError {
		issues = append(issues, "The run encountered an error before finishing")
	}
	if o.finishReason == stream.FinishToolCalls {
		issues = append(issues, "The run stopped mid-execution with tool calls still pending")
	}
	if !hasSubstantialOutput {
		issues = append(issues, "The run produced insufficient output")
	}

	return stream.Analysis{
		Success:       attemptedTools && normalFinish && hasSubstantialOutput && !hasError,
		ToolCallCount: o.toolCallCount,
		ToolNames:     append([]string(nil), o.toolNames...),
		FinishReason:  o.finishReason,
		Issues:        issues,
		Summary:       buildSummary(trimmed, issues),
		ErrorMessage:  errMsg,
	}
}

// buildSummary prefers the run's own output, falling back to the first
// issue when there is nothing to show. Capped at 300 characters.
func buildSummary(output string, issues []string) string {
	s := output
	if s == "" && len(issues) > 0 {
		s = issues[0]
	}
	if len(s) > summaryLimit {
		runes := []rune(s)
		if len(runes) > summaryLimit-3 {
			s = string(runes[:summaryLimit-3]) + "..."
		}
	}
	return s
}

// toolSummary renders a short human-readable account of the tools used.
func toolSummary(o outcome) string {
	if o.toolCallCount == 0 {
		return ""
	}
	return strings.Join(o.toolNames, ", ")
}
