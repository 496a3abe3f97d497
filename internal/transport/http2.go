package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/http2"

	"github.com/tamtunnel/spacecomms/internal/model"
)

// MessagesPath is the reference binding's wire path (spec §6).
const MessagesPath = "/spacecomms/v1/messages"

// httpChannel frames one JSON envelope per Decode/Encode call over a
// streaming HTTP/2 request/response body pair.
type httpChannel struct {
	enc *json.Encoder
	dec *json.Decoder

	writeMu sync.Mutex
	closer  io.Closer
	closed  chan struct{}
	once    sync.Once
}

func newHTTPChannel(w io.Writer, r io.Reader, closer io.Closer) *httpChannel {
	return &httpChannel{
		enc:    json.NewEncoder(w),
		dec:    json.NewDecoder(r),
		closer: closer,
		closed: make(chan struct{}),
	}
}

func (c *httpChannel) Send(env model.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.enc.Encode(env)
}

func (c *httpChannel) Recv() (model.Envelope, error) {
	var env model.Envelope
	if err := c.dec.Decode(&env); err != nil {
		c.markClosed()
		if err == io.EOF {
			return model.Envelope{}, fmt.Errorf("peer closed: %w", io.EOF)
		}
		return model.Envelope{}, err
	}
	return env, nil
}

func (c *httpChannel) Closed() <-chan struct{} { return c.closed }

func (c *httpChannel) markClosed() {
	c.once.Do(func() { close(c.closed) })
}

func (c *httpChannel) Close() error {
	c.markClosed()
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// HTTP2Dialer dials peers using HTTP/2 POST with a streaming request body,
// per spec §6's reference transport binding.
type HTTP2Dialer struct {
	Client    *http.Client
	UseTLS    bool
}

// NewHTTP2Dialer builds a dialer. When useTLS is false (development,
// spec §6 "Cleartext HTTP is permitted for development"), h2c is used so
// HTTP/2 still runs over plaintext.
func NewHTTP2Dialer(useTLS bool) *HTTP2Dialer {
	if useTLS {
		return &HTTP2Dialer{
			UseTLS: true,
			Client: &http.Client{Transport: &http2.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS13},
			}},
		}
	}
	return &HTTP2Dialer{
		Client: &http.Client{Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		}},
	}
}

func (c *HTTP2Dialer) Dial(ctx context.Context, address string, authToken string) (Channel, error) {
	scheme := "http"
	if c.UseTLS {
		scheme = "https"
	}
	pr, pw := io.Pipe()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, scheme+"://"+address+MessagesPath, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("peer rejected connection: %s", resp.Status)
	}

	return newHTTPChannel(pw, resp.Body, multiCloser{pw, resp.Body}), nil
}

type multiCloser struct {
	w io.Closer
	r io.Closer
}

func (m multiCloser) Close() error {
	werr := m.w.Close()
	rerr := m.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// HTTPServerListener accepts Channels via a chi/http.Handler mounted at
// MessagesPath; each inbound POST becomes one Channel handed to Accept.
type HTTPServerListener struct {
	incoming chan Channel
	done     chan struct{}
	once     sync.Once
}

func NewHTTPServerListener() *HTTPServerListener {
	return &HTTPServerListener{
		incoming: make(chan Channel, 16),
		done:     make(chan struct{}),
	}
}

// Handler returns the http.HandlerFunc to mount at MessagesPath.
func (l *HTTPServerListener) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ch := newHTTPChannel(flushWriter{w, flusher}, r.Body, r.Body)
		select {
		case l.incoming <- ch:
		case <-l.done:
			ch.Close()
			return
		case <-r.Context().Done():
			ch.Close()
			return
		}

		<-ch.Closed()
	}
}

func (l *HTTPServerListener) Accept(ctx context.Context) (Channel, error) {
	select {
	case ch := <-l.incoming:
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *HTTPServerListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

type flushWriter struct {
	w io.Writer
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.f.Flush()
	return n, err
}
