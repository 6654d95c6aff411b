package tui

import (
	"fmt"
	"io"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"  _       _   _               ", "#818cf8"},
	{" | |_ ___| |_| |__   ___ _ __ ", "#a78bfa"},
	{" | __/ _ \\ __| '_ \\ / _ \\ '__|", "#c084fc"},
	{" | ||  __/ |_| | | |  __/ |   ", "#e879f9"},
	{"  \\__\\___|\\__|_| |_|\\___|_|   ", "#f472b6"},
}

// PrintBanner writes the ASCII art banner and version to w.
func PrintBanner(w io.Writer, p termenv.Profile, version string) {
	fmt.Fprintln(w)
	for _, line := range bannerLines {
		fmt.Fprintln(w, p.String(line.text).Foreground(p.Color(line.color)))
	}
	fmt.Fprintln(w, p.String("  v"+version).Faint())
	fmt.Fprintln(w)
}

var stateColors = map[domain.RunState]string{
	domain.StateIdle:          "#9ca3af",
	domain.StateStarting:      "#818cf8",
	domain.StateStreaming:     "#60a5fa",
	domain.StateAwaitingInput: "#fbbf24",
	domain.StateResuming:      "#818cf8",
	domain.StateCompleted:     "#34d399",
	domain.StateFailed:        "#f87171",
}

// StateLabel returns the state name styled for the given color profile.
func StateLabel(p termenv.Profile, s domain.RunState) string {
	color, ok := stateColors[s]
	if !ok {
		return s.String()
	}
	style := p.String(s.String()).Foreground(p.Color(color))
	if s.IsTerminal() {
		style = style.Bold()
	}
	return style.String()
}

// Prompt returns an interactive field prompt, e.g. "? Select a region (region): ".
func Prompt(p termenv.Profile, key, text string) string {
	mark := p.String("?").Foreground(p.Color("#fbbf24")).Bold()
	hint := p.String("(" + key + ")").Faint()
	return fmt.Sprintf("%s %s %s: ", mark, text, hint)
}
