package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/tether/internal/presentation/tui"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Driver is the run lifecycle the CLI operates on.
type Driver interface {
	Start(ctx context.Context, prompt any) error
	SetInputField(key string, value any) error
	Resume(ctx context.Context) error
	Snapshot() domain.Snapshot
	Changed() <-chan struct{}
}

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	Prompt string
	// JSON switches to JSON-lines: one message per line on Out, one input
	// object per line on In.
	JSON bool
	// Quiet suppresses the banner and system messages.
	Quiet   bool
	Style   string
	Profile termenv.Profile
	Version string
	In      io.Reader
	Out     io.Writer
}

// Execute drives one run from start to completion or failure, answering
// every interrupt from opts.In. A failed run is returned as an error.
func Execute(ctx context.Context, d Driver, opts RunOptions) error {
	if opts.Prompt == "" {
		return errors.New("a prompt is required")
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	var ui frontend
	if opts.JSON {
		ui = newJSONFrontend(opts.In, opts.Out)
	} else {
		text, err := newTextFrontend(opts)
		if err != nil {
			return err
		}
		ui = text
	}

	if err := d.Start(ctx, opts.Prompt); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return err
		}
		return ui.Finish(d.Snapshot())
	}

	printed := 0
	for {
		snap, err := follow(ctx, d, &printed, ui.Event)
		if err != nil {
			return err
		}

		if snap.State != domain.StateAwaitingInput {
			return ui.Finish(snap)
		}

		input, err := ui.Ask(snap)
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		for _, key := range sortedKeys(input) {
			if err := d.SetInputField(key, input[key]); err != nil {
				return err
			}
		}
		if err := d.Resume(ctx); err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				return err
			}
			return ui.Finish(d.Snapshot())
		}
	}
}

// follow reports new events until the run comes to rest or ctx ends.
func follow(ctx context.Context, d Driver, printed *int, onEvent func(domain.RunID, any) error) (domain.Snapshot, error) {
	for {
		changed := d.Changed()
		snap := d.Snapshot()
		for ; *printed < len(snap.Events); *printed++ {
			if err := onEvent(snap.RunID, snap.Events[*printed]); err != nil {
				return snap, err
			}
		}
		switch snap.State {
		case domain.StateAwaitingInput, domain.StateCompleted, domain.StateFailed:
			return snap, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// IsTerminal reports whether r is an interactive terminal.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// frontend renders a run and collects input for it.
type frontend interface {
	Event(runID domain.RunID, payload any) error
	Ask(snap domain.Snapshot) (domain.PendingInput, error)
	Finish(snap domain.Snapshot) error
}

type textFrontend struct {
	out     io.Writer
	in      *bufio.Reader
	render  func(string) (string, error)
	profile termenv.Profile
	quiet   bool
}

func newTextFrontend(opts RunOptions) (*textFrontend, error) {
	render, err := tui.NewRenderer(opts.Style)
	if err != nil {
		return nil, err
	}
	if !opts.Quiet {
		tui.PrintBanner(opts.Out, opts.Profile, opts.Version)
	}
	return &textFrontend{
		out:     opts.Out,
		in:      bufio.NewReader(opts.In),
		render:  render,
		profile: opts.Profile,
		quiet:   opts.Quiet,
	}, nil
}

func (f *textFrontend) print(markdown string) error {
	out, err := f.render(markdown)
	if err != nil {
		return err
	}
	_, err = io.WriteString(f.out, out)
	return err
}

func (f *textFrontend) Event(_ domain.RunID, payload any) error {
	return f.print(tui.EventMarkdown(payload))
}

// Ask prompts for every requested field. An empty answer leaves the field
// unset, so the backend asks for it again.
func (f *textFrontend) Ask(snap domain.Snapshot) (domain.PendingInput, error) {
	if err := f.print(tui.InterruptMarkdown(snap.Interrupt, snap.Pending)); err != nil {
		return nil, err
	}
	input := make(domain.PendingInput)
	for _, key := range snap.Interrupt.Keys() {
		fmt.Fprint(f.out, tui.Prompt(f.profile, key, snap.Interrupt[key]))
		line, err := f.in.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return nil, err
		}
		value, err := SanitizeInput(strings.TrimSpace(line))
		if err != nil {
			return nil, fmt.Errorf("input for %q: %w", key, err)
		}
		if value != "" {
			input[key] = value
		}
	}
	return input, nil
}

func (f *textFrontend) Finish(snap domain.Snapshot) error {
	if err := f.print(tui.ResultMarkdown(snap)); err != nil {
		return err
	}
	if !f.quiet {
		printSystemMessage(f.out, "Run %s ended %s.", runLabel(snap.RunID), tui.StateLabel(f.profile, snap.State))
	}
	return runError(snap)
}

// Message is one line of JSON-lines output.
type Message struct {
	Type      string                  `json:"type"`
	RunID     domain.RunID            `json:"run_id,omitempty"`
	Payload   any                     `json:"payload,omitempty"`
	Interrupt domain.InterruptRequest `json:"interrupt,omitempty"`
	Result    any                     `json:"result,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// Message types written in JSON-lines mode.
const (
	MessageEvent     = "event"
	MessageInterrupt = "interrupt"
	MessageCompleted = "completed"
	MessageFailed    = "failed"
)

type jsonFrontend struct {
	enc *json.Encoder
	dec *json.Decoder
}

func newJSONFrontend(in io.Reader, out io.Writer) *jsonFrontend {
	return &jsonFrontend{
		enc: json.NewEncoder(out),
		dec: json.NewDecoder(in),
	}
}

func (f *jsonFrontend) Event(runID domain.RunID, payload any) error {
	return f.enc.Encode(Message{Type: MessageEvent, RunID: runID, Payload: payload})
}

// Ask writes the interrupt and reads one JSON object of field values.
func (f *jsonFrontend) Ask(snap domain.Snapshot) (domain.PendingInput, error) {
	if err := f.enc.Encode(Message{Type: MessageInterrupt, RunID: snap.RunID, Interrupt: snap.Interrupt}); err != nil {
		return nil, err
	}
	var input domain.PendingInput
	if err := f.dec.Decode(&input); err != nil {
		return nil, err
	}
	for key, value := range input {
		if text, ok := value.(string); ok {
			clean, err := SanitizeInput(text)
			if err != nil {
				return nil, fmt.Errorf("input for %q: %w", key, err)
			}
			input[key] = clean
		}
	}
	return input, nil
}

func (f *jsonFrontend) Finish(snap domain.Snapshot) error {
	msg := Message{Type: MessageCompleted, RunID: snap.RunID, Result: snap.Result}
	if snap.State == domain.StateFailed {
		msg = Message{Type: MessageFailed, RunID: snap.RunID, Error: snap.Error}
	}
	if err := f.enc.Encode(msg); err != nil {
		return err
	}
	return runError(snap)
}

func runError(snap domain.Snapshot) error {
	if snap.State != domain.StateFailed {
		return nil
	}
	if snap.Err != nil {
		return fmt.Errorf("run failed: %w", snap.Err)
	}
	return fmt.Errorf("run failed: %s", snap.Error)
}

func runLabel(id domain.RunID) string {
	if id == "" {
		return "(not created)"
	}
	return "'" + string(id) + "'"
}
