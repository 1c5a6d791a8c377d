package reconstruct

import (
	"strings"

	"parley/internal/stream"
)

// Reconstruct derives the segment list from an event sequence. It is safe
// to call repeatedly as the sequence grows; results for a longer prefix
// extend, never rewrite, the segments produced for a shorter one.
//
// Segmentation rules: events carrying a known boundary id group into one
// agent segment per boundary, ordered by first start seen, even when runs
// interleave on the wire. Boundary-less events accumulate into normal
// segments, with adjacent normal spans merged. A boundary end without a
// start is ignored; a second start for the same id is ignored.
func Reconstruct(events []stream.Event) []Segment {
	if len(events) == 0 {
		return nil
	}

	var order []*segmentBuilder
	byBoundary := make(map[string]*segmentBuilder)
	var lastNormal *segmentBuilder

	for _, ev := range events {
		switch e := ev.(type) {
		case *stream.BoundaryStartEvent:
			if _, dup := byBoundary[e.BoundaryID]; dup {
				// First start wins.
				continue
			}
			sb := newSegmentBuilder(SegmentAgent)
			sb.boundary = &BoundaryInfo{
				BoundaryID: e.BoundaryID,
				AgentID:    e.AgentID,
				Task:       e.Task,
				Toolkits:   append([]string(nil), e.Toolkits...),
				Context:    e.Context,
				Open:       true,
			}
			byBoundary[e.BoundaryID] = sb
			order = append(order, sb)
			lastNormal = nil

		case *stream.BoundaryEndEvent:
			sb, ok := byBoundary[e.BoundaryID]
			if !ok {
				// Dangling end, nothing to close.
				continue
			}
			if !sb.boundary.Open {
				continue
			}
			analysis := e.Analysis
			sb.boundary.Open = false
			sb.boundary.Analysis = &analysis
			sb.boundary.ToolSummary = e.ToolSummary
			sb.boundary.Usage = e.TokenUsage
			lastNormal = nil

		case *stream.StepEvent:
			if sb, ok := byBoundary[e.BoundaryID]; ok && e.BoundaryID != "" {
				sb.applyStep(e)
				lastNormal = nil
				continue
			}
			if lastNormal == nil {
				lastNormal = newSegmentBuilder(SegmentNormal)
				order = append(order, lastNormal)
			}
			lastNormal.applyStep(e)
		}
	}

	segments := make([]Segment, 0, len(order))
	for _, sb := range order {
		segments = append(segments, sb.finish())
	}
	return segments
}

// segmentBuilder holds the open-accumulator bookkeeping for one segment
// during a single reconstruction pass.
type segmentBuilder struct {
	kind     SegmentKind
	boundary *BoundaryInfo
	parts    []*Part
	accums   map[string]*Part // content id -> open text-like block
	tools    map[string]*Part // tool call id -> tool block
}

func newSegmentBuilder(kind SegmentKind) *segmentBuilder {
	return &segmentBuilder{
		kind:   kind,
		accums: make(map[string]*Part),
		tools:  make(map[string]*Part),
	}
}

func (sb *segmentBuilder) applyStep(e *stream.StepEvent) {
	switch e.Kind {
	case stream.StepKindText, stream.StepKindReasoning, stream.StepKindFile:
		sb.applyTextLike(e)
	case stream.StepKindTool:
		sb.applyTool(e)
	case stream.StepKindStep:
		if e.ErrorText != "" {
			part := &Part{Kind: PartError, ID: e.StepID, State: PartDone, ErrorText: e.ErrorText, Text: e.ErrorText}
			sb.parts = append(sb.parts, part)
		}
	}
}

func partKindFor(kind stream.StepKind) PartKind {
	switch kind {
	case stream.StepKindReasoning:
		return PartReasoning
	case stream.StepKindFile:
		return PartFile
	default:
		return PartText
	}
}

// applyTextLike drives the start/delta/end accumulator protocol. A start
// eagerly inserts a visible placeholder, deltas update it in place, and an
// end finalizes it, dropping blocks that accumulated nothing but whitespace.
func (sb *segmentBuilder) applyTextLike(e *stream.StepEvent) {
	switch e.Status {
	case stream.StepStatusStart:
		if _, open := sb.accums[e.StepID]; open {
			// Idempotent open.
			return
		}
		part := &Part{Kind: partKindFor(e.Kind), ID: e.StepID, State: PartStreaming}
		sb.accums[e.StepID] = part
		sb.parts = append(sb.parts, part)

	case stream.StepStatusDelta:
		part, open := sb.accums[e.StepID]
		if !open {
			// Delta with no observed start; open implicitly so the content
			// is not lost.
			part = &Part{Kind: partKindFor(e.Kind), ID: e.StepID, State: PartStreaming}
			sb.accums[e.StepID] = part
			sb.parts = append(sb.parts, part)
		}
		part.Text += e.Delta

	case stream.StepStatusEnd:
		part, open := sb.accums[e.StepID]
		if !open {
			return
		}
		delete(sb.accums, e.StepID)
		if strings.TrimSpace(part.Text) == "" {
			sb.removePart(part)
			return
		}
		part.State = PartDone
	}
}

// applyTool drives the two-phase tool protocol: input-available creates the
// block, output-available updates the same block in place. An out-of-order
// output with no prior block synthesizes a complete one.
func (sb *segmentBuilder) applyTool(e *stream.StepEvent) {
	key := e.ToolCallID
	if key == "" {
		key = e.StepID
	}

	switch e.Status {
	case stream.StepStatusInputAvailable:
		if part, exists := sb.tools[key]; exists {
			// A block synthesized from an out-of-order output has an empty
			// input; the late arrival fills it in.
			if len(part.Input) == 0 {
				part.Input = e.Input
			}
			if part.ToolName == "" {
				part.ToolName = e.ToolName
			}
			return
		}
		part := &Part{
			Kind:       PartTool,
			ID:         e.StepID,
			State:      PartStreaming,
			ToolCallID: key,
			ToolName:   e.ToolName,
			Input:      e.Input,
		}
		sb.tools[key] = part
		sb.parts = append(sb.parts, part)

	case stream.StepStatusOutputAvailable:
		part, exists := sb.tools[key]
		if !exists {
			part = &Part{
				Kind:       PartTool,
				ID:         e.StepID,
				State:      PartDone,
				ToolCallID: key,
				ToolName:   e.ToolName,
				Input:      map[string]any{},
			}
			sb.tools[key] = part
			sb.parts = append(sb.parts, part)
		}
		part.Output = e.Output
		part.HasOutput = true
		part.ErrorText = e.ErrorText
		part.State = PartDone
		if part.ToolName == "" {
			part.ToolName = e.ToolName
		}
	}
}

func (sb *segmentBuilder) removePart(target *Part) {
	for i, part := range sb.parts {
		if part == target {
			sb.parts = append(sb.parts[:i], sb.parts[i+1:]...)
			return
		}
	}
}

func (sb *segmentBuilder) finish() Segment {
	parts := make([]Part, len(sb.parts))
	for i, part := range sb.parts {
		parts[i] = *part
	}
	return Segment{Kind: sb.kind, Parts: parts, Boundary: sb.boundary}
}
