// Copyright 2026 The Cascade Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trace

import (
	"fmt"
	"sort"
	"strings"
)

// MultipleRootsLabel names the synthetic root inserted when a trace
// contains more than one independent root span.
const MultipleRootsLabel = "(multiple roots)"

// Node is one node of the reconstructed execution tree. Purely derived
// from a trace's spans; recomputed on demand and never mutated by the
// tracer.
type Node struct {
	// PipelineID identifies the pipeline or the synthetic root label.
	PipelineID string `json:"pipeline_id"`

	// Span is the owning span, nil for a synthetic root.
	Span *Span `json:"span,omitempty"`

	// Children are spans whose parent pointer names this node's span.
	Children []*Node `json:"children,omitempty"`

	// TotalDurationMS is this span's duration plus the aggregated
	// durations of all descendants.
	TotalDurationMS int64 `json:"total_duration_ms"`

	// StepCount is 1 for the own span plus all descendant spans.
	StepCount int `json:"step_count"`

	// MaxDepth is the deepest nesting depth in this subtree.
	MaxDepth int `json:"max_depth"`
}

// BuildExecutionTree reconstructs the call tree from a trace's flat
// span records. Spans with no parent become roots; multiple roots are
// gathered under one synthetic root node.
func BuildExecutionTree(t *Trace) *Node {
	if t == nil {
		return nil
	}
	spans := t.SpanSnapshot()
	if len(spans) == 0 {
		return nil
	}

	byParent := make(map[string][]*Span)
	for _, s := range spans {
		byParent[s.ParentSpanID] = append(byParent[s.ParentSpanID], s)
	}
	for _, group := range byParent {
		sort.Slice(group, func(i, j int) bool {
			if group[i].StartTime.Equal(group[j].StartTime) {
				return group[i].ID < group[j].ID
			}
			return group[i].StartTime.Before(group[j].StartTime)
		})
	}

	roots := byParent[""]
	if len(roots) == 1 {
		return buildNode(roots[0], byParent)
	}

	synthetic := &Node{PipelineID: MultipleRootsLabel}
	for _, r := range roots {
		child := buildNode(r, byParent)
		synthetic.Children = append(synthetic.Children, child)
		synthetic.TotalDurationMS += child.TotalDurationMS
		synthetic.StepCount += child.StepCount
		if child.MaxDepth > synthetic.MaxDepth {
			synthetic.MaxDepth = child.MaxDepth
		}
	}
	return synthetic
}

func buildNode(span *Span, byParent map[string][]*Span) *Node {
	node := &Node{
		PipelineID:      span.PipelineID,
		Span:            span,
		TotalDurationMS: span.DurationMS,
		StepCount:       1,
		MaxDepth:        span.Depth,
	}
	for _, childSpan := range byParent[span.ID] {
		child := buildNode(childSpan, byParent)
		node.Children = append(node.Children, child)
		node.TotalDurationMS += child.TotalDurationMS
		node.StepCount += child.StepCount
		if child.MaxDepth > node.MaxDepth {
			node.MaxDepth = child.MaxDepth
		}
	}
	return node
}

// VisualizeOptions controls tree rendering.
type VisualizeOptions struct {
	// ShowTimings appends per-node durations.
	ShowTimings bool

	// ShowStatus prefixes each node with a status marker.
	ShowStatus bool

	// MaxDepth limits rendered tree levels; 0 means unlimited.
	// Deeper nodes are replaced by an explicit truncation marker.
	MaxDepth int
}

// Visualize renders an indented textual view of the execution tree.
func Visualize(root *Node, opts VisualizeOptions) string {
	if root == nil {
		return "(empty trace)\n"
	}
	var b strings.Builder
	visualizeNode(&b, root, 0, opts)
	return b.String()
}

func visualizeNode(b *strings.Builder, node *Node, level int, opts VisualizeOptions) {
	indent := strings.Repeat("  ", level)

	if opts.MaxDepth > 0 && level >= opts.MaxDepth {
		fmt.Fprintf(b, "%s… (max depth reached)\n", indent)
		return
	}

	b.WriteString(indent)
	if opts.ShowStatus {
		b.WriteString(statusMarker(node) + " ")
	}
	b.WriteString(nodeLabel(node))
	if opts.ShowTimings {
		fmt.Fprintf(b, " (%dms)", node.TotalDurationMS)
	}
	b.WriteByte('\n')

	for _, child := range node.Children {
		visualizeNode(b, child, level+1, opts)
	}
}

func statusMarker(node *Node) string {
	if node.Span == nil {
		return "•"
	}
	switch node.Span.Status {
	case StatusCompleted:
		return "✓"
	case StatusFailed:
		return "✗"
	default:
		return "•"
	}
}

func nodeLabel(node *Node) string {
	if node.Span == nil {
		return node.PipelineID
	}
	if node.Span.StepName != "" {
		return fmt.Sprintf("%s › %s [%s]", node.PipelineID, node.Span.StepName, node.Span.StepType)
	}
	return node.PipelineID
}

// DepthStats aggregates spans recorded at one nesting depth.
type DepthStats struct {
	Count       int     `json:"count"`
	TotalMS     int64   `json:"total_ms"`
	AvgMS       float64 `json:"avg_ms"`
	MinMS       int64   `json:"min_ms"`
	MaxMS       int64   `json:"max_ms"`
	SuccessRate float64 `json:"success_rate"`
}

// Summary is the flattened statistical view over an execution tree.
type Summary struct {
	TotalSpans        int                `json:"total_spans"`
	Completed         int                `json:"completed"`
	Failed            int                `json:"failed"`
	SuccessRate       float64            `json:"success_rate"`
	DistinctPipelines int                `json:"distinct_pipelines"`
	TotalDurationMS   int64              `json:"total_duration_ms"`
	MaxDepth          int                `json:"max_depth"`
	ByDepth           map[int]DepthStats `json:"by_depth"`
}

// Summarize flattens all spans in the tree and computes totals,
// success rate, and per-depth buckets.
func Summarize(root *Node) Summary {
	summary := Summary{ByDepth: make(map[int]DepthStats)}
	if root == nil {
		return summary
	}

	pipelines := make(map[string]struct{})
	completedByDepth := make(map[int]int)

	var walk func(*Node)
	walk = func(n *Node) {
		if n.Span != nil {
			s := n.Span
			summary.TotalSpans++
			summary.TotalDurationMS += s.DurationMS
			pipelines[s.PipelineID] = struct{}{}
			if s.Depth > summary.MaxDepth {
				summary.MaxDepth = s.Depth
			}
			switch s.Status {
			case StatusCompleted:
				summary.Completed++
				completedByDepth[s.Depth]++
			case StatusFailed:
				summary.Failed++
			}

			stats := summary.ByDepth[s.Depth]
			if stats.Count == 0 || s.DurationMS < stats.MinMS {
				stats.MinMS = s.DurationMS
			}
			if s.DurationMS > stats.MaxMS {
				stats.MaxMS = s.DurationMS
			}
			stats.Count++
			stats.TotalMS += s.DurationMS
			summary.ByDepth[s.Depth] = stats
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(root)

	if summary.TotalSpans > 0 {
		summary.SuccessRate = float64(summary.Completed) / float64(summary.TotalSpans) * 100
	}
	summary.DistinctPipelines = len(pipelines)

	for depth, stats := range summary.ByDepth {
		stats.AvgMS = float64(stats.TotalMS) / float64(stats.Count)
		stats.SuccessRate = float64(completedByDepth[depth]) / float64(stats.Count) * 100
		summary.ByDepth[depth] = stats
	}
	return summary
}
