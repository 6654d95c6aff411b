package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMarkdown(t *testing.T) {
	assert.Equal(t, "**Step 1** Planning\n", EventMarkdown(map[string]any{"step": 1, "message": "Planning"}))
	assert.Equal(t, "Working\n", EventMarkdown(map[string]any{"message": "Working"}))
	assert.Equal(t, "```json\n{\n  \"sku\": \"B2s\"\n}\n```\n", EventMarkdown(map[string]any{"sku": "B2s"}))
	assert.Equal(t, "```json\n\"plain\"\n```\n", EventMarkdown("plain"))
}

func TestInterruptMarkdown(t *testing.T) {
	md := InterruptMarkdown(
		domain.InterruptRequest{"size": "Pick a VM size", "region": "Select a region"},
		domain.PendingInput{"region": "eastus"},
	)
	assert.Equal(t, "### Input required\n\n- **region**: Select a region (`eastus`)\n- **size**: Pick a VM size\n", md)
}

func TestResultMarkdown(t *testing.T) {
	assert.Contains(t, ResultMarkdown(domain.Snapshot{State: domain.StateCompleted, HasResult: true, Result: map[string]any{"vmId": "vm-42"}}), `"vmId": "vm-42"`)
	assert.Contains(t, ResultMarkdown(domain.Snapshot{State: domain.StateCompleted}), "without a result")
	assert.Contains(t, ResultMarkdown(domain.Snapshot{State: domain.StateFailed, Error: "boom"}), "> boom")
}

func TestStateLabel_Ascii(t *testing.T) {
	assert.Equal(t, "awaiting_input", StateLabel(termenv.Ascii, domain.StateAwaitingInput))
	assert.Equal(t, "? Select a region (region): ", Prompt(termenv.Ascii, "region", "Select a region"))
}

func TestNewRenderer(t *testing.T) {
	render, err := NewRenderer("notty")
	require.NoError(t, err)
	out, err := render("**Step 1** Planning")
	require.NoError(t, err)
	assert.Contains(t, out, "Planning")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, termenv.Ascii, "1.2.3")
	assert.Equal(t, len(bannerLines)+3, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "  v1.2.3\n")
	assert.NotContains(t, buf.String(), "\x1b[")
}
