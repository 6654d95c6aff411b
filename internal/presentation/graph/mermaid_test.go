package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/tether/internal/presentation/graph"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(nil)

	assert.True(t, strings.HasPrefix(out, "stateDiagram-v2\n"))
	for _, line := range []string{
		"[*] --> idle",
		"idle --> starting: start",
		"starting --> streaming",
		"streaming --> awaiting_input: interrupt",
		"streaming --> completed: done",
		"awaiting_input --> resuming: resume",
		"resuming --> completed: settled",
		"completed --> starting: start",
		"resuming --> failed: error",
	} {
		assert.Contains(t, out, line)
	}
	assert.NotContains(t, out, "idle --> failed", "idle cannot fail")
	assert.NotContains(t, out, "completed --> failed", "sinks cannot fail")
	assert.NotContains(t, out, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	out := graph.GenerateMermaid(&graph.Overlay{Current: domain.StateAwaitingInput})
	assert.Contains(t, out, "classDef current")
	assert.Equal(t, 1, strings.Count(out, "class awaiting_input current"))

	out = graph.GenerateMermaid(&graph.Overlay{})
	assert.NotContains(t, out, "class ")
}
