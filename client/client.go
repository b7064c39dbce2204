// Package client implements the daemon RPC surface: version handshake,
// typed request/response calls, the watch registry and the progress
// tracker, all multiplexed over one transport.Transport.
package client

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orbaslabs/peerdrive/internal/config"
	"github.com/orbaslabs/peerdrive/internal/rpcbody"
	"github.com/orbaslabs/peerdrive/internal/wire"
	"github.com/orbaslabs/peerdrive/transport"
)

const (
	protoMajor = 1
	protoMinor = 0
)

// ConnState describes a Client's position in its connection lifecycle, for
// observability surfaces such as internal/debugsrv.
type ConnState int32

const (
	StateHandshaking ConnState = iota
	StateConnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is the application-facing RPC handle to one daemon connection.
type Client struct {
	t      *transport.Transport
	log    *logrus.Entry
	cfg    config.Config
	connID string

	maxPacketSize uint32
	state         int32 // ConnState, accessed atomically

	watch    *watchRegistry
	progress *progressTracker

	doneCh chan struct{}
}

// State reports the client's current connection lifecycle state.
func (c *Client) State() ConnState { return ConnState(atomic.LoadInt32(&c.state)) }

// Option customizes Dial.
type Option func(*options)

type options struct {
	log *logrus.Entry
	cfg *config.Config
}

// WithLogger overrides the logger used for connection lifecycle events.
func WithLogger(log *logrus.Entry) Option {
	return func(o *options) { o.log = log }
}

// WithConfig overrides the client-side tunables.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// Dial connects to ep, performs the Init handshake, and returns a ready
// Client. Version mismatch is fatal: the connection is closed and an error
// returned.
func Dial(ctx context.Context, ep Endpoint, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	cfg := config.Default()
	if o.cfg != nil {
		cfg = *o.cfg
	}

	var d net.Dialer
	if cfg.Dial.Timeout > 0 {
		d.Timeout = cfg.Dial.Timeout
	}
	conn, err := d.DialContext(ctx, "tcp", ep.Addr)
	if err != nil {
		return nil, newErr("Dial", CodeConnReset, err)
	}

	connID := uuid.New().String()
	log = log.WithField("conn_id", connID)

	t := transport.New(conn, log)
	c := &Client{t: t, log: log, cfg: cfg, connID: connID, doneCh: make(chan struct{})}
	c.watch = newWatchRegistry(c)
	c.progress = newProgressTracker(c)

	if err := c.handshake(ctx, ep.Cookie); err != nil {
		atomic.StoreInt32(&c.state, int32(StateClosed))
		t.Close()
		return nil, err
	}
	atomic.StoreInt32(&c.state, int32(StateConnected))

	go c.dispatchLoop()
	log.Infof("client: connected, max_packet_size=%d", c.maxPacketSize)
	return c, nil
}

// ConnID returns the client-generated correlation ID for this connection's
// lifetime, for cross-referencing logs from internal/debugsrv or a caller's
// own telemetry.
func (c *Client) ConnID() string { return c.connID }

func (c *Client) handshake(ctx context.Context, cookie []byte) error {
	b := rpcbody.NewBuilder()
	b.PutUint64(1, protoMajor)
	b.PutUint64(2, protoMinor)
	b.PutBytes(3, cookie)

	frame, err := c.t.SendRequest(ctx, wire.MsgInit, b.Bytes())
	if err != nil {
		return newErr("Init", CodeConnReset, err)
	}
	if frame.Code == wire.MsgError {
		return parseErrorFrame("Init", frame)
	}
	if frame.Code != wire.MsgInit {
		return newErr("Init", CodeBadRPC, fmt.Errorf("unexpected reply type %v", frame.Code))
	}
	msg, err := rpcbody.Parse(frame.Payload)
	if err != nil {
		return newErr("Init", CodeBadRPC, err)
	}
	major, _ := msg.Uint64(1)
	minor, _ := msg.Uint64(2)
	maxPkt, _ := msg.Uint64(3)
	if major != protoMajor || minor != protoMinor {
		return newErr("Init", CodeRPCMismatch, fmt.Errorf("daemon speaks %d.%d, want %d.%d", major, minor, protoMajor, protoMinor))
	}
	c.maxPacketSize = uint32(maxPkt)
	return nil
}

// MaxPacketSize returns the negotiated chunking unit for attachment I/O
//.
func (c *Client) MaxPacketSize() uint32 { return c.maxPacketSize }

// WatchSnapshot returns the current watch registry ref counts, for
// introspection surfaces such as internal/debugsrv. It never touches the
// wire.
func (c *Client) WatchSnapshot() []WatchRefCount { return c.watch.snapshot() }

// ProgressSnapshot returns the progress tracker's current table, for
// introspection surfaces such as internal/debugsrv. It never touches the
// wire.
func (c *Client) ProgressSnapshot() []ProgressEntry { return c.progress.snapshot() }

// Close shuts down the connection. It is safe to call once; the transport's
// own Close is idempotent.
func (c *Client) Close() error {
	select {
	case <-c.doneCh:
	default:
		close(c.doneCh)
	}
	atomic.StoreInt32(&c.state, int32(StateClosed))
	return c.t.Close()
}

func (c *Client) dispatchLoop() {
	for f := range c.t.Indications() {
		switch f.Code {
		case wire.MsgWatch:
			c.watch.dispatch(f)
		case wire.MsgProgressStart, wire.MsgProgress, wire.MsgProgressEnd:
			c.progress.dispatch(f)
		default:
			c.log.Warnf("client: unexpected indication type %v", f.Code)
		}
	}
}

func parseErrorFrame(op string, frame wire.Frame) error {
	msg, err := rpcbody.Parse(frame.Payload)
	if err != nil {
		return newErr(op, CodeBadRPC, fmt.Errorf("malformed Error body: %w", err))
	}
	rawCode, _ := msg.Int64(1)
	text, _ := msg.String(2)
	var errVal error
	if text != "" {
		errVal = fmt.Errorf("%s", text)
	}
	return newErr(op, daemonErrCode(int32(rawCode)), errVal).withRaw(int32(rawCode))
}

func (e *Error) withRaw(raw int32) *Error {
	e.Raw = raw
	return e
}

// call issues a typed RPC and returns its parsed response body, translating
// Error confirmations and reply-type mismatches into *Error.
func (c *Client) call(ctx context.Context, op string, code wire.MsgType, body []byte) (*rpcbody.Message, error) {
	frame, err := c.t.SendRequest(ctx, code, body)
	if err != nil {
		if err == context.Canceled || err == context.DeadlineExceeded {
			return nil, err
		}
		return nil, newErr(op, CodeConnReset, err)
	}
	if frame.Code == wire.MsgError {
		return nil, parseErrorFrame(op, frame)
	}
	if frame.Code != code {
		return nil, newErr(op, CodeBadRPC, fmt.Errorf("unexpected reply type %v", frame.Code))
	}
	msg, err := rpcbody.Parse(frame.Payload)
	if err != nil {
		return nil, newErr(op, CodeBadRPC, err)
	}
	return msg, nil
}
