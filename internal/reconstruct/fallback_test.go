package reconstruct

import (
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/stream"
)

func delegateInvocation(boundaryID, callID string, input map[string]any) stream.Event {
	return &stream.StepEvent{BoundaryID: boundaryID, StepID: callID, Kind: stream.StepKindTool,
		Status: stream.StepStatusInputAvailable, ToolCallID: callID, ToolName: "delegate_task", Input: input}
}

func TestSessionFallbackSynthesizesOpenSegment(t *testing.T) {
	events := []stream.Event{
		textStart("", "p1"),
		textDelta("", "p1", "let me delegate that "),
		textEnd("", "p1"),
		delegateInvocation("", "tc1", map[string]any{
			"task":     "check unread mail",
			"toolkits": []any{"GMAIL"},
		}),
		textDelta("", "t1", "working on it"),
	}

	segments := NewSession(16, nil).Reconstruct(events)
	require.Len(t, segments, 2)
	require.Equal(t, SegmentNormal, segments[0].Kind)

	agent := segments[1]
	require.Equal(t, SegmentAgent, agent.Kind)
	require.True(t, agent.Boundary.Open, "synthesized segment is open-ended")
	require.Equal(t, "check unread mail", agent.Boundary.Task)
	require.Equal(t, []string{"GMAIL"}, agent.Boundary.Toolkits)
	// The invocation itself and the trailing delta both belong to the
	// synthesized segment.
	require.Len(t, agent.Parts, 2)
}

func TestSessionFallbackRepairsMalformedToolkitJSON(t *testing.T) {
	events := []stream.Event{
		delegateInvocation("", "tc1", map[string]any{
			"task":     "triage",
			"toolkits": `["GMAIL", "NOTION"`,
		}),
	}

	segments := NewSession(16, nil).Reconstruct(events)
	require.Len(t, segments, 1)
	require.Equal(t, []string{"GMAIL", "NOTION"}, segments[0].Boundary.Toolkits)
}

func TestSessionFallbackCommaSeparatedToolkits(t *testing.T) {
	events := []stream.Event{
		delegateInvocation("", "tc1", map[string]any{
			"task":     "triage",
			"toolkits": "gmail, notion",
		}),
	}

	segments := NewSession(16, nil).Reconstruct(events)
	require.Equal(t, []string{"gmail", "notion"}, segments[0].Boundary.Toolkits)
}

func TestSessionNoFallbackWhenBoundariesPresent(t *testing.T) {
	events := []stream.Event{
		start("b1", "real task", "GMAIL"),
		delegateInvocation("b1", "tc1", map[string]any{"task": "nested"}),
		end("b1", true),
	}

	segments := NewSession(16, nil).Reconstruct(events)
	require.Len(t, segments, 1)
	require.Equal(t, "real task", segments[0].Boundary.Task)
	require.False(t, segments[0].Boundary.Open)

	// A boundary-less invocation alongside real boundaries stays a normal
	// segment instead of spawning a synthesized one.
	events = []stream.Event{
		start("b1", "real task", "GMAIL"),
		end("b1", true),
		delegateInvocation("", "tc2", map[string]any{"task": "stray"}),
	}
	segments = NewSession(16, nil).Reconstruct(events)
	require.Len(t, segments, 2)
	require.Equal(t, SegmentNormal, segments[1].Kind)
	require.Nil(t, segments[1].Boundary)
}

func TestSessionDoesNotMutateInput(t *testing.T) {
	invocation := delegateInvocation("", "tc1", map[string]any{"task": "t"}).(*stream.StepEvent)
	events := []stream.Event{invocation, textDelta("", "x", "tail")}

	NewSession(16, nil).Reconstruct(events)
	require.Empty(t, invocation.BoundaryID, "session must not mutate caller events")
}

func TestSessionMemoizesPayloads(t *testing.T) {
	session := NewSession(16, nil)
	events := []stream.Event{
		delegateInvocation("", "tc1", map[string]any{"task": "grows", "toolkits": []any{"GMAIL"}}),
	}

	first := session.Reconstruct(events)
	events = append(events, textDelta("", "t1", "more output"))
	second := session.Reconstruct(events)

	require.Equal(t, first[0].Boundary.Task, second[0].Boundary.Task)
	require.Len(t, second[0].Parts, 2)
}
