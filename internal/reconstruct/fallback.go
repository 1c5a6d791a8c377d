package reconstruct

import (
	"encoding/json"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kaptinlin/jsonrepair"

	"parley/internal/shared/logging"
	"parley/internal/stream"
)

// delegateToolName marks a tool invocation that represents a delegated run.
// Some malformed or legacy streams carry the invocation without boundary
// markers; the session synthesizes a segment for it.
const delegateToolName = "delegate_task"

// delegatePayload is the metadata recoverable from a delegate-shaped tool
// call's input.
type delegatePayload struct {
	Task     string
	Toolkits []string
	Context  string
}

// Session reconstructs streams for one consumer, adding a fallback over
// the pure algorithm: when a stream contains a recognizable
// delegate-shaped tool invocation but no boundary markers at all, it
// synthesizes a single open segment spanning from that invocation to the
// end of the stream. Parsed payloads are memoized per tool-call id so
// repeated reconstruction of a growing stream stays cheap.
type Session struct {
	payloads *lru.Cache[string, *delegatePayload]
	logger   logging.Logger
}

// NewSession creates a reconstruction session. cacheSize bounds the payload
// memo table.
func NewSession(cacheSize int, logger logging.Logger) *Session {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, _ := lru.New[string, *delegatePayload](cacheSize)
	return &Session{payloads: cache, logger: logging.OrNop(logger)}
}

// Reconstruct rebuilds segments, applying the no-boundary fallback when it
// applies. The input event list is never mutated.
func (s *Session) Reconstruct(events []stream.Event) []Segment {
	if idx, payload, ok := s.fallbackPoint(events); ok {
		return s.reconstructWithFallback(events, idx, payload)
	}
	return Reconstruct(events)
}

// fallbackPoint finds the first delegate-shaped tool invocation when the
// stream carries no boundary events whatsoever.
func (s *Session) fallbackPoint(events []stream.Event) (int, *delegatePayload, bool) {
	for _, ev := range events {
		switch ev.EventType() {
		case stream.EventTypeStart, stream.EventTypeEnd:
			return 0, nil, false
		}
	}
	for i, ev := range events {
		step, ok := ev.(*stream.StepEvent)
		if !ok || step.Kind != stream.StepKindTool || step.ToolName != delegateToolName {
			continue
		}
		return i, s.parsePayload(step), true
	}
	return 0, nil, false
}

func (s *Session) reconstructWithFallback(events []stream.Event, idx int, payload *delegatePayload) []Segment {
	const syntheticBoundary = "fallback"

	rewritten := make([]stream.Event, 0, len(events)+1)
	rewritten = append(rewritten, events[:idx]...)
	rewritten = append(rewritten, &stream.BoundaryStartEvent{
		BoundaryID: syntheticBoundary,
		Timestamp:  events[idx].At(),
		Task:       payload.Task,
		Toolkits:   payload.Toolkits,
		Context:    payload.Context,
	})
	for _, ev := range events[idx:] {
		if step, ok := ev.(*stream.StepEvent); ok {
			tagged := *step
			tagged.BoundaryID = syntheticBoundary
			rewritten = append(rewritten, &tagged)
			continue
		}
		rewritten = append(rewritten, ev)
	}
	return Reconstruct(rewritten)
}

// parsePayload extracts task and toolkit metadata from the invocation's
// input, memoized by tool-call id. Toolkits may arrive as an array, a
// comma-separated string, or a malformed JSON fragment; the latter goes
// through repair before parsing.
func (s *Session) parsePayload(step *stream.StepEvent) *delegatePayload {
	key := step.ToolCallID
	if key == "" {
		key = step.StepID
	}
	if cached, ok := s.payloads.Get(key); ok {
		return cached
	}

	payload := &delegatePayload{}
	if task, ok := step.Input["task"].(string); ok {
		payload.Task = task
	}
	if contextText, ok := step.Input["context"].(string); ok {
		payload.Context = contextText
	}
	payload.Toolkits = s.parseToolkits(step.Input["toolkits"])

	s.payloads.Add(key, payload)
	return payload
}

func (s *Session) parseToolkits(raw any) []string {
	switch v := raw.(type) {
	case []any:
		var names []string
		for _, item := range v {
			if name, ok := item.(string); ok && strings.TrimSpace(name) != "" {
				names = append(names, strings.TrimSpace(name))
			}
		}
		return names
	case []string:
		return append([]string(nil), v...)
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			return s.parseToolkitJSON(trimmed)
		}
		var names []string
		for _, part := range strings.Split(trimmed, ",") {
			if name := strings.TrimSpace(part); name != "" {
				names = append(names, name)
			}
		}
		return names
	default:
		return nil
	}
}

// parseToolkitJSON handles toolkits arriving as a JSON array string,
// repairing truncated or malformed fragments from interrupted streams.
func (s *Session) parseToolkitJSON(raw string) []string {
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err == nil {
		return names
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		s.logger.Debug("toolkit payload unrepairable: %v", err)
		return nil
	}
	if err := json.Unmarshal([]byte(repaired), &names); err != nil {
		return nil
	}
	return names
}
