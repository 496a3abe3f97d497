package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/tamtunnel/spacecomms/internal/model"
)

// InProcessNetwork wires named in-process listeners together without any
// real sockets, used by session/routing/scenario tests to exercise the
// full dial -> hello -> active lifecycle deterministically.
type InProcessNetwork struct {
	mu        sync.Mutex
	listeners map[string]*inProcessListener
}

func NewInProcessNetwork() *InProcessNetwork {
	return &InProcessNetwork{listeners: make(map[string]*inProcessListener)}
}

// Listen registers a named endpoint (spec §6 peer "address") and returns
// its Listener.
func (n *InProcessNetwork) Listen(address string) Listener {
	n.mu.Lock()
	defer n.mu.Unlock()
	l := &inProcessListener{incoming: make(chan Channel, 16), done: make(chan struct{})}
	n.listeners[address] = l
	return l
}

// Dialer returns a Dialer that connects to listeners registered on this network.
func (n *InProcessNetwork) Dialer() Dialer {
	return &inProcessDialer{network: n}
}

type inProcessDialer struct {
	network *InProcessNetwork
}

func (d *inProcessDialer) Dial(ctx context.Context, address string, authToken string) (Channel, error) {
	d.network.mu.Lock()
	l, ok := d.network.listeners[address]
	d.network.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("in-process network: no listener at %q", address)
	}

	clientSide, serverSide := newPipePair()
	select {
	case l.incoming <- serverSide:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}
	return clientSide, nil
}

type inProcessListener struct {
	incoming chan Channel
	done     chan struct{}
	once     sync.Once
}

func (l *inProcessListener) Accept(ctx context.Context) (Channel, error) {
	select {
	case ch := <-l.incoming:
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *inProcessListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

// pipeChannel is one end of an in-memory duplex envelope pipe.
type pipeChannel struct {
	out    chan model.Envelope
	in     chan model.Envelope
	closed chan struct{}
	once   sync.Once
}

func newPipePair() (client Channel, server Channel) {
	ab := make(chan model.Envelope, 64)
	ba := make(chan model.Envelope, 64)
	closed := make(chan struct{})
	c := &pipeChannel{out: ab, in: ba, closed: closed}
	s := &pipeChannel{out: ba, in: ab, closed: closed}
	return c, s
}

func (p *pipeChannel) Send(env model.Envelope) error {
	select {
	case p.out <- env:
		return nil
	case <-p.closed:
		return ErrClosed
	}
}

func (p *pipeChannel) Recv() (model.Envelope, error) {
	select {
	case env := <-p.in:
		return env, nil
	case <-p.closed:
		return model.Envelope{}, ErrClosed
	}
}

func (p *pipeChannel) Closed() <-chan struct{} { return p.closed }

func (p *pipeChannel) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
