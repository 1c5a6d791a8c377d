package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Boundary multiplexes one delegated run onto a shared outbound sink. It
// emits the boundary-start before any internal event, stamps every relayed
// event with the run's boundary id, and guarantees exactly one boundary-end
// regardless of how the run terminates. A run must never leave a dangling
// start on the wire.
type Boundary struct {
	sink       Sink
	agentID    string
	boundaryID string

	mu     sync.Mutex
	closed bool
}

// OpenBoundary mints a fresh boundary identity, emits the start event, and
// returns the handle the run emits through.
func OpenBoundary(sink Sink, agentID, task string, toolkits []string, contextText string) *Boundary {
	b := &Boundary{
		sink:       sink,
		agentID:    agentID,
		boundaryID: uuid.NewString(),
	}
	sink.Emit(&BoundaryStartEvent{
		AgentID:    agentID,
		BoundaryID: b.boundaryID,
		Timestamp:  time.Now().UTC(),
		Task:       task,
		Toolkits:   append([]string(nil), toolkits...),
		Context:    contextText,
	})
	return b
}

// ID returns the run's boundary identity.
func (b *Boundary) ID() string { return b.boundaryID }

// Emit implements Sink. Relayed step events are stamped with the boundary id
// so the consumer can attribute them; events arriving after Close are
// dropped to preserve the start, internals, end ordering per run.
func (b *Boundary) Emit(ev Event) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	if step, ok := ev.(*StepEvent); ok {
		step.BoundaryID = b.boundaryID
		if step.Timestamp.IsZero() {
			step.Timestamp = time.Now().UTC()
		}
	}
	b.sink.Emit(ev)
}

// Close emits the boundary-end carrying the terminal analysis. It is
// idempotent; only the first call emits.
func (b *Boundary) Close(analysis Analysis, toolSummary string, usage *TokenUsage) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.sink.Emit(&BoundaryEndEvent{
		AgentID:     b.agentID,
		BoundaryID:  b.boundaryID,
		Timestamp:   time.Now().UTC(),
		Analysis:    analysis,
		ToolSummary: toolSummary,
		TokenUsage:  usage,
	})
}

// CloseWithError terminates the boundary with a generic error analysis,
// for callers that abort before computing their own terminal verdict.
func (b *Boundary) CloseWithError(cause any) {
	msg := fmt.Sprintf("%v", cause)
	b.Close(Analysis{
		Success:      false,
		FinishReason: FinishError,
		Issues:       []string{msg},
		Summary:      "Run failed: " + msg,
		ErrorMessage: msg,
	}, "", nil)
}

var _ Sink = (*Boundary)(nil)
