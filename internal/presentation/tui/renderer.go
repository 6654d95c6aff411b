package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// An empty style detects the terminal background.
func NewRenderer(style string) (func(string) (string, error), error) {
	opt := glamour.WithAutoStyle()
	if style != "" {
		opt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(100))
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}
	return r.Render, nil
}

// EventMarkdown formats one streamed payload.
// Objects carrying a "message" are shown as prose, anything else as JSON.
func EventMarkdown(payload any) string {
	if m, ok := payload.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok && msg != "" {
			if step, ok := m["step"]; ok {
				return fmt.Sprintf("**Step %v** %s\n", step, msg)
			}
			return msg + "\n"
		}
	}
	return jsonBlock(payload)
}

// InterruptMarkdown lists the fields a paused run is asking for.
func InterruptMarkdown(req domain.InterruptRequest, pending domain.PendingInput) string {
	var sb strings.Builder
	sb.WriteString("### Input required\n\n")
	for _, key := range req.Keys() {
		fmt.Fprintf(&sb, "- **%s**: %s", key, req[key])
		if v, ok := pending[key]; ok {
			fmt.Fprintf(&sb, " (`%v`)", v)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ResultMarkdown formats the final outcome of a run.
func ResultMarkdown(snap domain.Snapshot) string {
	switch snap.State {
	case domain.StateCompleted:
		if !snap.HasResult {
			return "### Completed\n\nThe run finished without a result.\n"
		}
		return "### Completed\n\n" + jsonBlock(snap.Result)
	case domain.StateFailed:
		return fmt.Sprintf("### Failed\n\n> %s\n", snap.Error)
	default:
		return fmt.Sprintf("### %s\n", snap.State)
	}
}

func jsonBlock(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("`%v`\n", v)
	}
	return "```json\n" + string(raw) + "\n```\n"
}
