// Package stream defines the wire-level event protocol shared by the
// delegated-run emitter and the consumer-side reconstructor. A delegated run
// is bracketed by paired boundary events; its internal progress is relayed as
// step events tagged with the run's boundary id so multiple runs can
// interleave on one outbound stream.
package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType discriminates the wire envelope.
type EventType string

const (
	EventTypeStart EventType = "start"
	EventTypeEnd   EventType = "end"
	EventTypeStep  EventType = "step"
)

// StepKind identifies what a step event carries.
type StepKind string

const (
	StepKindText      StepKind = "text"
	StepKindReasoning StepKind = "reasoning"
	StepKindTool      StepKind = "tool"
	StepKindStep      StepKind = "step"
	StepKindFile      StepKind = "file"
)

// StepStatus is the lifecycle phase of a step event.
type StepStatus string

const (
	StepStatusStart           StepStatus = "start"
	StepStatusDelta           StepStatus = "delta"
	StepStatusEnd             StepStatus = "end"
	StepStatusInputAvailable  StepStatus = "input-available"
	StepStatusOutputAvailable StepStatus = "output-available"
	StepStatusFinish          StepStatus = "finish"
)

// FinishReason is the terminal cause reported by a generation loop.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool-calls"
	FinishError     FinishReason = "error"
	FinishOther     FinishReason = "other"
)

// NormalizeFinishReason maps provider stop-reason spellings onto the
// normalized taxonomy.
func NormalizeFinishReason(raw string) FinishReason {
	switch raw {
	case "stop", "end_turn", "completed":
		return FinishStop
	case "length", "max_tokens":
		return FinishLength
	case "tool_calls", "tool_use", "tool-calls":
		return FinishToolCalls
	case "error":
		return FinishError
	default:
		return FinishOther
	}
}

// TokenUsage mirrors the model accounting carried on a boundary end.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Analysis is the terminal verdict of a delegated run. It is computed once
// at run completion and immutable thereafter.
type Analysis struct {
	Success       bool         `json:"success"`
	ToolCallCount int          `json:"toolCallCount"`
	ToolNames     []string     `json:"toolNames"`
	FinishReason  FinishReason `json:"finishReason"`
	Issues        []string     `json:"issues"`
	Summary       string       `json:"summary"`
	ErrorMessage  string       `json:"errorMessage,omitempty"`
}

// Event is the union of everything that travels on the outbound stream.
// Events with an empty BoundaryID belong to the parent stream itself.
type Event interface {
	EventType() EventType
	Boundary() string
	At() time.Time
}

// BoundaryStartEvent opens a delegated run on the wire.
type BoundaryStartEvent struct {
	AgentID    string    `json:"agentId"`
	BoundaryID string    `json:"boundaryId"`
	Timestamp  time.Time `json:"timestamp"`
	Task       string    `json:"task"`
	Toolkits   []string  `json:"toolkits"`
	Context    string    `json:"context,omitempty"`
}

func (e *BoundaryStartEvent) EventType() EventType { return EventTypeStart }
func (e *BoundaryStartEvent) Boundary() string     { return e.BoundaryID }
func (e *BoundaryStartEvent) At() time.Time        { return e.Timestamp }

// BoundaryEndEvent closes a delegated run. Every start is eventually matched
// by exactly one end, error paths included.
type BoundaryEndEvent struct {
	AgentID     string      `json:"agentId"`
	BoundaryID  string      `json:"boundaryId"`
	Timestamp   time.Time   `json:"timestamp"`
	Analysis    Analysis    `json:"analysis"`
	ToolSummary string      `json:"toolSummary,omitempty"`
	TokenUsage  *TokenUsage `json:"tokenUsage,omitempty"`
}

func (e *BoundaryEndEvent) EventType() EventType { return EventTypeEnd }
func (e *BoundaryEndEvent) Boundary() string     { return e.BoundaryID }
func (e *BoundaryEndEvent) At() time.Time        { return e.Timestamp }

// StepEvent relays one unit of internal progress. Field usage depends on
// Kind: text and reasoning steps accumulate via Delta between start and end,
// tool steps carry the call id, name, input, and eventually output, and
// plain step markers bracket one generation round via Step.
type StepEvent struct {
	BoundaryID string         `json:"boundaryId,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	StepID     string         `json:"stepId"`
	Kind       StepKind       `json:"kind"`
	Status     StepStatus     `json:"status"`
	Delta      string         `json:"delta,omitempty"`
	Step       int            `json:"step,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     string         `json:"output,omitempty"`
	ErrorText  string         `json:"errorText,omitempty"`
}

func (e *StepEvent) EventType() EventType { return EventTypeStep }
func (e *StepEvent) Boundary() string     { return e.BoundaryID }
func (e *StepEvent) At() time.Time        { return e.Timestamp }

// envelope is the outer wire frame: a stable type tag, an id, and the
// kind-specific payload.
type envelope struct {
	Type EventType       `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// envelopeID returns the id carried on the outer frame.
func envelopeID(ev Event) string {
	if step, ok := ev.(*StepEvent); ok {
		return step.StepID
	}
	return ev.Boundary()
}

// Encode marshals an event into its wire envelope.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", ev.EventType(), err)
	}
	return json.Marshal(envelope{Type: ev.EventType(), ID: envelopeID(ev), Data: data})
}

// Decode parses a wire envelope back into a typed event.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	switch env.Type {
	case EventTypeStart:
		var ev BoundaryStartEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal start event: %w", err)
		}
		return &ev, nil
	case EventTypeEnd:
		var ev BoundaryEndEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal end event: %w", err)
		}
		return &ev, nil
	case EventTypeStep:
		var ev StepEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal step event: %w", err)
		}
		return &ev, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
