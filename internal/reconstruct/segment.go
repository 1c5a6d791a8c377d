// Package reconstruct rebuilds an ordered, displayable view of a response
// stream from the flat event sequence produced on the wire. Reconstruction
// is a pure projection: the same event list always yields the same segments,
// and re-running on a longer prefix never rewrites previously closed
// segments.
package reconstruct

import "parley/internal/stream"

// SegmentKind distinguishes spans owned by the parent stream from spans
// owned by a delegated run.
type SegmentKind string

const (
	SegmentNormal SegmentKind = "normal"
	SegmentAgent  SegmentKind = "agent"
)

// PartKind identifies a reconstructed content block.
type PartKind string

const (
	PartText      PartKind = "text"
	PartReasoning PartKind = "reasoning"
	PartTool      PartKind = "tool"
	PartFile      PartKind = "file"
	PartError     PartKind = "error"
)

// PartState tracks whether a block is still accumulating.
type PartState string

const (
	PartStreaming PartState = "streaming"
	PartDone      PartState = "done"
)

// Part is one reconstructed content block. Text-like parts accumulate via
// deltas; tool parts fill in two phases, input first and output later.
type Part struct {
	Kind       PartKind
	ID         string
	State      PartState
	Text       string
	ToolCallID string
	ToolName   string
	Input      map[string]any
	Output     string
	HasOutput  bool
	ErrorText  string
}

// BoundaryInfo carries a delegated run's metadata on its segment. Open
// stays true until the matching boundary end has been observed; an open
// segment still renders with whatever has accumulated.
type BoundaryInfo struct {
	BoundaryID  string
	AgentID     string
	Task        string
	Toolkits    []string
	Context     string
	Open        bool
	Analysis    *stream.Analysis
	ToolSummary string
	Usage       *stream.TokenUsage
}

// Segment is one reconstructed span of the response. Normal segments have a
// nil Boundary.
type Segment struct {
	Kind     SegmentKind
	Parts    []Part
	Boundary *BoundaryInfo
}
