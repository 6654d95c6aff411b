package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/tether/pkg/domain"
)

// Overlay contains run data to highlight on the diagram.
type Overlay struct {
	Current domain.RunState
}

// GenerateMermaid produces a Mermaid state diagram of the run lifecycle.
// Failure edges are drawn dotted from every non-terminal state.
// The overlay, if provided, highlights the current state.
func GenerateMermaid(overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")
	fmt.Fprintf(&sb, "    [*] --> %s\n", domain.StateIdle)

	states := domain.AllStates()
	for _, from := range states {
		for _, to := range states {
			if to == domain.StateFailed || !domain.CanTransition(from, to) {
				continue
			}
			fmt.Fprintf(&sb, "    %s --> %s%s\n", from, to, edgeLabel(from, to))
		}
	}
	for _, from := range states {
		if domain.CanTransition(from, domain.StateFailed) {
			fmt.Fprintf(&sb, "    %s --> %s: error\n", from, domain.StateFailed)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast on light and dark themes.
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000\n")
		if overlay.Current != "" {
			fmt.Fprintf(&sb, "    class %s current\n", overlay.Current)
		}
	}

	return sb.String()
}

func edgeLabel(from, to domain.RunState) string {
	switch {
	case to == domain.StateStarting:
		return ": start"
	case to == domain.StateResuming:
		return ": resume"
	case to == domain.StateAwaitingInput:
		return ": interrupt"
	case from == domain.StateStreaming && to == domain.StateCompleted:
		return ": done"
	case from == domain.StateResuming && to == domain.StateCompleted:
		return ": settled"
	default:
		return ""
	}
}
