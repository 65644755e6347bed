package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/wayz/pkg/domain"
)

// Overlay contains run data to visualize on the graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
	Failed       bool
}

// OverlayFromState marks the steps of order up to state.CurrentStep as visited.
// A CurrentStep outside order (e.g. "completed") marks every step visited.
func OverlayFromState(order []string, state *domain.State) *Overlay {
	o := &Overlay{Failed: state.Failed()}
	idx := slices.Index(order, state.CurrentStep)
	if idx < 0 {
		o.VisitedNodes = slices.Clone(order)
		return o
	}
	o.VisitedNodes = slices.Clone(order[:idx])
	o.CurrentNode = state.CurrentStep
	return o
}

// GenerateMermaid produces a Mermaid flowchart of graph run in order.
// With no order the graph's registration order is used.
// It applies semantic styling:
// - First node: ((Circle))
// - Blocking: [[Subroutine]] (runs on the worker pool)
// - Suspending: [Rectangle]
// It also applies overlay styles (Visited/Current/Failed) if provided.
func GenerateMermaid(g *domain.Graph, order []string, overlay *Overlay) string {
	if len(order) == 0 {
		order = g.Order()
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i, name := range order {
		safeID := sanitizeMermaidID(name)

		opener, closer := "[", "]"
		node, ok := g.Node(name)
		switch {
		case !ok:
			opener, closer = "{{", "}}" // Missing from graph
		case i == 0:
			opener, closer = "((", "))"
		case node.Mode == domain.Blocking:
			opener, closer = "[[", "]]"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, name, closer))

		if i > 0 {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", sanitizeMermaidID(order[i-1]), safeID))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#b71c1c,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}

		if overlay.CurrentNode != "" {
			class := "current"
			if overlay.Failed {
				class = "failed"
			}
			sb.WriteString(fmt.Sprintf("    class %s %s;\n", sanitizeMermaidID(overlay.CurrentNode), class))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
