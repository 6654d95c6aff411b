package stream

import "log/slog"

// Option configures an Opener.
type Option func(*Opener)

// WithLogger configures the structured logger used by sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Opener) {
		o.logger = logger
	}
}

// WithMaxFrameSize caps the bytes a single frame may take (default MaxFrameSize).
// A larger frame ends the session with a malformed-frame transport error.
func WithMaxFrameSize(n int) Option {
	return func(o *Opener) {
		if n > 0 {
			o.maxFrame = n
		}
	}
}
