// Package transport defines the peer channel abstraction (spec §6 "Peer
// transport") and an HTTP/2 implementation of it. The interface shape is
// carried over from the teacher's core.Transport (Broadcast/Unicast/Listen/
// Close), narrowed from "one transport fans out to every partition" to
// "one Channel per peer, ordered, frame-preserving" per spec §6's three
// transport-agnostic requirements.
package transport

import (
	"context"
	"io"

	"github.com/tamtunnel/spacecomms/internal/model"
)

// Channel is a bidirectional, ordered, framed connection to one peer.
// It carries exactly one JSON envelope per frame (spec §6).
type Channel interface {
	// Send writes one envelope as a frame. Send must not interleave
	// partial frames from concurrent callers; callers serialize Sends
	// themselves (the session owns exclusive use of its Channel).
	Send(env model.Envelope) error

	// Recv blocks for the next inbound frame. When the connection is gone
	// it returns an error: the HTTP/2 channel wraps io.EOF when the peer
	// closed its side, the in-process channel returns ErrClosed.
	Recv() (model.Envelope, error)

	// Closed returns a channel closed when the connection is gone, so
	// callers can select on connection-closed events (spec §6 requirement iii).
	Closed() <-chan struct{}

	Close() error
}

// Dialer opens a new outbound Channel to a peer address.
type Dialer interface {
	Dial(ctx context.Context, address string, authToken string) (Channel, error)
}

// Listener accepts inbound Channels opened by remote peers.
type Listener interface {
	Accept(ctx context.Context) (Channel, error)
	Close() error
}

// ErrClosed is returned by Recv/Send after Close.
var ErrClosed = io.ErrClosedPipe
