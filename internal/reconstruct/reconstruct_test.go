package reconstruct

import (
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/stream"
)

func start(boundary, task string, toolkits ...string) stream.Event {
	return &stream.BoundaryStartEvent{BoundaryID: boundary, AgentID: "agent-" + boundary, Task: task, Toolkits: toolkits}
}

func end(boundary string, success bool) stream.Event {
	return &stream.BoundaryEndEvent{BoundaryID: boundary, Analysis: stream.Analysis{Success: success, FinishReason: stream.FinishStop}}
}

func textStart(boundary, id string) stream.Event {
	return &stream.StepEvent{BoundaryID: boundary, StepID: id, Kind: stream.StepKindText, Status: stream.StepStatusStart}
}

func textDelta(boundary, id, delta string) stream.Event {
	return &stream.StepEvent{BoundaryID: boundary, StepID: id, Kind: stream.StepKindText, Status: stream.StepStatusDelta, Delta: delta}
}

func textEnd(boundary, id string) stream.Event {
	return &stream.StepEvent{BoundaryID: boundary, StepID: id, Kind: stream.StepKindText, Status: stream.StepStatusEnd}
}

func toolInput(boundary, callID, name string) stream.Event {
	return &stream.StepEvent{BoundaryID: boundary, StepID: callID, Kind: stream.StepKindTool,
		Status: stream.StepStatusInputAvailable, ToolCallID: callID, ToolName: name, Input: map[string]any{"q": "x"}}
}

func toolOutput(boundary, callID, name, output string) stream.Event {
	return &stream.StepEvent{BoundaryID: boundary, StepID: callID, Kind: stream.StepKindTool,
		Status: stream.StepStatusOutputAvailable, ToolCallID: callID, ToolName: name, Output: output}
}

func TestReconstructEmpty(t *testing.T) {
	require.Empty(t, Reconstruct(nil))
	require.Empty(t, Reconstruct([]stream.Event{}))
}

func TestReconstructSingleClosedRun(t *testing.T) {
	events := []stream.Event{
		start("b1", "check mail", "GMAIL"),
		textStart("b1", "t1"),
		textDelta("b1", "t1", "two "),
		textDelta("b1", "t1", "messages"),
		textEnd("b1", "t1"),
		end("b1", true),
	}
	segments := Reconstruct(events)
	require.Len(t, segments, 1)

	seg := segments[0]
	require.Equal(t, SegmentAgent, seg.Kind)
	require.Equal(t, "check mail", seg.Boundary.Task)
	require.False(t, seg.Boundary.Open)
	require.True(t, seg.Boundary.Analysis.Success)
	require.Len(t, seg.Parts, 1)
	require.Equal(t, "two messages", seg.Parts[0].Text)
	require.Equal(t, PartDone, seg.Parts[0].State)
}

func TestReconstructOpenBoundaryRenders(t *testing.T) {
	events := []stream.Event{
		start("b1", "in flight"),
		textStart("b1", "t1"),
		textDelta("b1", "t1", "partial"),
	}
	segments := Reconstruct(events)
	require.Len(t, segments, 1)
	require.True(t, segments[0].Boundary.Open)
	require.Len(t, segments[0].Parts, 1)
	require.Equal(t, "partial", segments[0].Parts[0].Text)
	require.Equal(t, PartStreaming, segments[0].Parts[0].State)
}

func TestReconstructInterleavedRunsGroupByIdentity(t *testing.T) {
	events := []stream.Event{
		start("b1", "first"),
		start("b2", "second"),
		textDelta("b1", "t1", "one"),
		textDelta("b2", "t2", "two"),
		end("b1", true),
		end("b2", true),
	}
	segments := Reconstruct(events)
	require.Len(t, segments, 2)
	require.Equal(t, "first", segments[0].Boundary.Task)
	require.Equal(t, "second", segments[1].Boundary.Task)
	require.Equal(t, "one", segments[0].Parts[0].Text)
	require.Equal(t, "two", segments[1].Parts[0].Text)
}

func TestReconstructNormalSpansMerge(t *testing.T) {
	events := []stream.Event{
		textStart("", "p1"),
		textDelta("", "p1", "hello "),
		textEnd("", "p1"),
		textStart("", "p2"),
		textDelta("", "p2", "world"),
		textEnd("", "p2"),
	}
	segments := Reconstruct(events)
	require.Len(t, segments, 1, "adjacent normal spans merge into one segment")
	require.Equal(t, SegmentNormal, segments[0].Kind)
	require.Len(t, segments[0].Parts, 2)
}

func TestReconstructNormalAgentNormal(t *testing.T) {
	events := []stream.Event{
		textStart("", "p1"),
		textDelta("", "p1", "before"),
		textEnd("", "p1"),
		start("b1", "task"),
		textDelta("b1", "t1", "inside"),
		end("b1", true),
		textStart("", "p2"),
		textDelta("", "p2", "after"),
		textEnd("", "p2"),
	}
	segments := Reconstruct(events)
	require.Len(t, segments, 3)
	require.Equal(t, SegmentNormal, segments[0].Kind)
	require.Equal(t, SegmentAgent, segments[1].Kind)
	require.Equal(t, SegmentNormal, segments[2].Kind)
}

func TestReconstructPrefixConsistency(t *testing.T) {
	events := []stream.Event{
		start("b1", "task one"),
		textStart("b1", "t1"),
		textDelta("b1", "t1", "alpha"),
		textEnd("b1", "t1"),
		end("b1", true),
		textStart("", "p1"),
		textDelta("", "p1", "between"),
		textEnd("", "p1"),
		start("b2", "task two"),
		textDelta("b2", "t2", "beta"),
		end("b2", false),
	}

	full := Reconstruct(events)
	for cut := 5; cut <= len(events); cut++ {
		partial := Reconstruct(events[:cut])
		require.Equal(t, full[0], partial[0],
			"closed first segment must be identical at prefix length %d", cut)
	}
}

func TestReconstructEmptyBlockDropped(t *testing.T) {
	events := []stream.Event{
		start("b1", "task"),
		textStart("b1", "t1"),
		textDelta("b1", "t1", "   "),
		textEnd("b1", "t1"),
		textStart("b1", "t2"),
		textDelta("b1", "t2", "real content"),
		textEnd("b1", "t2"),
		end("b1", true),
	}
	segments := Reconstruct(events)
	require.Len(t, segments[0].Parts, 1, "whitespace-only block must be dropped")
	require.Equal(t, "real content", segments[0].Parts[0].Text)
}

func TestReconstructDuplicateStartIgnored(t *testing.T) {
	events := []stream.Event{
		start("b1", "original task"),
		start("b1", "impostor task"),
		textDelta("b1", "t1", "content"),
	}
	segments := Reconstruct(events)
	require.Len(t, segments, 1)
	require.Equal(t, "original task", segments[0].Boundary.Task)
}

func TestReconstructDanglingEndIgnored(t *testing.T) {
	events := []stream.Event{
		textStart("", "p1"),
		textDelta("", "p1", "text"),
		textEnd("", "p1"),
		end("ghost", true),
	}
	segments := Reconstruct(events)
	require.Len(t, segments, 1)
	require.Equal(t, SegmentNormal, segments[0].Kind)
}

func TestReconstructToolTwoPhase(t *testing.T) {
	events := []stream.Event{
		start("b1", "task"),
		toolInput("b1", "tc1", "gmail_search"),
		toolOutput("b1", "tc1", "gmail_search", "3 results"),
		end("b1", true),
	}
	segments := Reconstruct(events)
	require.Len(t, segments[0].Parts, 1, "output must update the block in place, not append")

	part := segments[0].Parts[0]
	require.Equal(t, PartTool, part.Kind)
	require.Equal(t, "gmail_search", part.ToolName)
	require.True(t, part.HasOutput)
	require.Equal(t, "3 results", part.Output)
	require.Equal(t, PartDone, part.State)
}

func TestReconstructOutOfOrderToolOutputSynthesizes(t *testing.T) {
	events := []stream.Event{
		start("b1", "task"),
		toolOutput("b1", "tc1", "gmail_search", "answer"),
	}
	segments := Reconstruct(events)
	require.Len(t, segments[0].Parts, 1, "exactly one block, synthesized complete")

	part := segments[0].Parts[0]
	require.True(t, part.HasOutput)
	require.NotNil(t, part.Input)
	require.Empty(t, part.Input)
}

func TestReconstructLateInputBackfillsSynthesizedBlock(t *testing.T) {
	events := []stream.Event{
		start("b1", "task"),
		toolOutput("b1", "tc1", "gmail_search", "answer"),
		toolInput("b1", "tc1", "gmail_search"),
	}
	segments := Reconstruct(events)
	require.Len(t, segments[0].Parts, 1, "late input must not open a second block")

	part := segments[0].Parts[0]
	require.Equal(t, PartDone, part.State)
	require.True(t, part.HasOutput)
	require.Equal(t, "answer", part.Output)
	require.Equal(t, map[string]any{"q": "x"}, part.Input)
}

func TestReconstructDeltaWithoutStartOpensImplicitly(t *testing.T) {
	events := []stream.Event{
		start("b1", "task"),
		textDelta("b1", "t1", "orphan delta"),
	}
	segments := Reconstruct(events)
	require.Len(t, segments[0].Parts, 1)
	require.Equal(t, "orphan delta", segments[0].Parts[0].Text)
}

func TestReconstructStepErrorBecomesErrorPart(t *testing.T) {
	events := []stream.Event{
		start("b1", "task"),
		&stream.StepEvent{BoundaryID: "b1", StepID: "step-1", Kind: stream.StepKindStep,
			Status: stream.StepStatusFinish, ErrorText: "tool gmail_send failed: smtp refused"},
	}
	segments := Reconstruct(events)
	require.Len(t, segments[0].Parts, 1)
	require.Equal(t, PartError, segments[0].Parts[0].Kind)
	require.Contains(t, segments[0].Parts[0].ErrorText, "smtp refused")
}

func TestReconstructIsPureOverRepeatedCalls(t *testing.T) {
	events := []stream.Event{
		start("b1", "task"),
		textStart("b1", "t1"),
		textDelta("b1", "t1", "abc"),
		end("b1", true),
	}
	first := Reconstruct(events)
	second := Reconstruct(events)
	require.Equal(t, first, second)
}
