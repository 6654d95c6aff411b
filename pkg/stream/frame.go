package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/tether/pkg/domain"
)

// DoneSentinel is the data payload marking the end of a run's stream.
const DoneSentinel = "[DONE]"

// Named SSE events with a meaning for the client.
const (
	EventMessage   = "message"
	EventInterrupt = "interrupt"
	EventError     = "error"
)

// ErrMalformedFrame is wrapped by transport errors caused by undecodable frames.
var ErrMalformedFrame = errors.New("malformed frame")

// MaxFrameSize caps the bytes read for a single frame, field names included.
const MaxFrameSize = 4 << 20

// Frame is one dispatched Server-Sent Event.
type Frame struct {
	Event string
	ID    string
	Data  []byte
}

// FrameReader splits an SSE byte stream into frames.
type FrameReader struct {
	r      *bufio.Reader
	limit  int
	lastID string
}

// NewFrameReader wraps r with the default MaxFrameSize.
func NewFrameReader(r io.Reader) *FrameReader {
	return NewFrameReaderSize(r, MaxFrameSize)
}

// NewFrameReaderSize wraps r, failing any frame larger than limit bytes.
func NewFrameReaderSize(r io.Reader, limit int) *FrameReader {
	if limit <= 0 {
		limit = MaxFrameSize
	}
	return &FrameReader{r: bufio.NewReader(r), limit: limit}
}

// Next reads lines until a blank line dispatches a frame.
// Comments are skipped, and so are frames whose data is empty; their id is
// carried to the next frame. It returns io.EOF when the stream ends,
// including when it ends in the middle of a frame, and an error wrapping
// ErrMalformedFrame when a frame grows past the size limit.
func (fr *FrameReader) Next() (Frame, error) {
	f := Frame{ID: fr.lastID}
	size := 0
	for {
		line, err := fr.readLine(fr.limit - size)
		if err != nil {
			return Frame{}, err
		}
		size += len(line)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(f.Data) == 0 {
				f = Frame{ID: fr.lastID}
				size = 0
				continue
			}
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
		case "data":
			if f.Data != nil {
				f.Data = append(f.Data, '\n')
			} else {
				f.Data = []byte{}
			}
			f.Data = append(f.Data, value...)
		case "id":
			f.ID = value
			fr.lastID = value
		}
	}
}

// readLine reads one line of at most limit bytes.
func (fr *FrameReader) readLine(limit int) (string, error) {
	var buf []byte
	for {
		chunk, err := fr.r.ReadSlice('\n')
		if len(buf)+len(chunk) > limit {
			return "", fmt.Errorf("%w: frame exceeds %d bytes", ErrMalformedFrame, fr.limit)
		}
		buf = append(buf, chunk...)
		switch {
		case err == nil:
			return string(buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			// A trailing line without newline never dispatches its frame.
			return "", io.EOF
		default:
			return "", err
		}
	}
}

// Classify turns a frame into a stream event. The second return value is
// false for frames the client ignores (keep-alives and unknown named events).
func Classify(runID domain.RunID, f Frame) (domain.StreamEvent, bool) {
	switch f.Event {
	case "", EventMessage:
		if string(bytes.TrimSpace(f.Data)) == DoneSentinel {
			return domain.TerminalEvent(runID), true
		}
		var payload any
		if err := json.Unmarshal(f.Data, &payload); err != nil {
			return malformed(runID, "data", err), true
		}
		return domain.DataEvent(runID, payload), true

	case EventInterrupt:
		var body struct {
			InterruptData map[string]string `json:"interrupt_data"`
		}
		if err := json.Unmarshal(f.Data, &body); err != nil {
			return malformed(runID, "interrupt", err), true
		}
		if len(body.InterruptData) == 0 {
			return malformed(runID, "interrupt", errors.New("missing interrupt_data")), true
		}
		return domain.InterruptEvent(runID, domain.InterruptRequest(body.InterruptData)), true

	case EventError:
		msg := strings.TrimSpace(string(f.Data))
		if msg == "" {
			msg = "backend signaled an error"
		}
		return domain.TransportErrorEvent(runID, &domain.TransportError{Op: "stream", Err: errors.New(msg)}), true

	default:
		return domain.StreamEvent{}, false
	}
}

func malformed(runID domain.RunID, kind string, err error) domain.StreamEvent {
	return domain.TransportErrorEvent(runID, &domain.TransportError{
		Op:  "stream",
		Err: fmt.Errorf("%w (%s): %v", ErrMalformedFrame, kind, err),
	})
}
