// Package transports defines the duplex session boundary between the app
// and a live voice provider. A Transport dials one conversation; the Conn
// it returns carries provider events inbound as frames and raw audio
// chunks outbound.
package transports

import (
	"context"

	"github.com/parlo-app/parlo/pkg/audio"
	"github.com/parlo-app/parlo/pkg/config"
	"github.com/parlo-app/parlo/pkg/frames"
)

// Conn is one established live session.
//
// Inbound traffic arrives on Recv as frames:
//   - frames.AudioFrame for synthesized speech (raw PCM, output rate)
//   - frames.TextFrame for transcript fragments (speaker and finality in meta)
//   - frames.ControlFrame for barge-in and turn boundaries
//   - frames.SystemFrame for session close and fatal errors
//
// Recv is closed after the session ends; a SystemFrame is always the last
// event on an abnormal close.
type Conn interface {
	// Recv returns the inbound event channel.
	Recv() <-chan frames.Frame
	// Send queues one encoded microphone chunk. Returns an error once the
	// session is closed.
	Send(chunk audio.OutboundChunk) error
	// Close tears the session down; idempotent.
	Close() error
}

// Transport dials live sessions for one provider family.
type Transport interface {
	// Name returns transport name for logging.
	Name() string
	// Connect blocks until the session handshake completes or fails.
	// Credential problems surface as auth_rejected, unreachable hosts as
	// network_unreachable.
	Connect(ctx context.Context, conv config.Conversation) (Conn, error)
}
