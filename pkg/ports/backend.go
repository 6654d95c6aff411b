package ports

import (
	"context"
	"io"

	"github.com/aretw0/tether/pkg/domain"
)

// Streamer opens the server-push connection for a run.
type Streamer interface {
	// Stream returns the raw event stream body. The connection is torn down
	// when ctx is canceled or the returned body is closed.
	Stream(ctx context.Context, runID domain.RunID) (io.ReadCloser, error)
}

// Backend is the remote workflow engine as seen by the client.
// Implementations return *domain.TransportError for connection failures and
// *domain.ProtocolError for responses that violate the contract.
type Backend interface {
	Streamer

	// CreateRun starts a new run with the given prompt payload.
	CreateRun(ctx context.Context, prompt any) (domain.RunID, error)

	// Resume submits the collected input for a paused run.
	Resume(ctx context.Context, runID domain.RunID, input domain.PendingInput) (domain.ResumeOutcome, error)
}
