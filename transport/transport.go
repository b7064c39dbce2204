// Package transport implements the length-prefixed framed multiplexer: a
// single background I/O task owns the socket, decoupling callers
// from blocking reads/writes and demultiplexing interleaved request
// confirmations from asynchronous indications.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/orbaslabs/peerdrive/internal/wire"
)

// ErrConnReset is returned to every pending call and ends the indication
// stream when the socket fails or the daemon closes the connection.
var ErrConnReset = errors.New("transport: connection reset")

const sendQueueDepth = 128

// Transport multiplexes framed requests/confirmations and indications over
// one net.Conn.
type Transport struct {
	conn net.Conn
	log  *logrus.Entry

	nextRef uint32

	mu      sync.Mutex
	pending map[uint32]chan result
	closed  bool
	closeCh chan struct{}

	sendQueue chan wire.Frame
	indicate  chan wire.Frame

	wg sync.WaitGroup
}

type result struct {
	frame wire.Frame
	err   error
}

// New starts the background reader and writer tasks over conn. The caller
// owns conn and must not use it directly afterward.
func New(conn net.Conn, log *logrus.Entry) *Transport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &Transport{
		conn:      conn,
		log:       log,
		pending:   make(map[uint32]chan result),
		closeCh:   make(chan struct{}),
		sendQueue: make(chan wire.Frame, sendQueueDepth),
		indicate:  make(chan wire.Frame, sendQueueDepth),
	}
	t.wg.Add(2)
	go t.writeLoop()
	go t.readLoop()
	return t
}

// Indications returns the channel of incoming IND frames, in arrival order.
// It is closed once the connection fails or is closed.
func (t *Transport) Indications() <-chan wire.Frame { return t.indicate }

// SendRequest enqueues a REQ frame with a fresh, monotonically-increasing
// ref and waits for the matching CNF/RSP frame, connection loss, or ctx
// cancellation. Cancelling ctx does not deregister the ref: a late reply is
// simply discarded.
func (t *Transport) SendRequest(ctx context.Context, code wire.MsgType, payload []byte) (wire.Frame, error) {
	ref := atomic.AddUint32(&t.nextRef, 1)
	ch := make(chan result, 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return wire.Frame{}, ErrConnReset
	}
	t.pending[ref] = ch
	t.mu.Unlock()

	frame := wire.Frame{Code: code, Flag: wire.FlagREQ, Ref: ref, Payload: payload}
	select {
	case t.sendQueue <- frame:
	case <-t.closeCh:
		t.deletePending(ref)
		return wire.Frame{}, ErrConnReset
	case <-ctx.Done():
		return wire.Frame{}, ctx.Err()
	}

	select {
	case r := <-ch:
		return r.frame, r.err
	case <-ctx.Done():
		return wire.Frame{}, ctx.Err()
	}
}

func (t *Transport) deletePending(ref uint32) {
	t.mu.Lock()
	delete(t.pending, ref)
	t.mu.Unlock()
}

// Close stops the writer, closes the socket and waits for both I/O
// goroutines to exit. It does not flush the send queue: frames still queued
// when Close is called are not written. Later calls are no-ops.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.closeCh)
	t.mu.Unlock()
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

func (t *Transport) writeLoop() {
	defer t.wg.Done()
	for {
		select {
		case f := <-t.sendQueue:
			if err := wire.WriteFrame(t.conn, f); err != nil {
				t.log.WithError(err).Warn("transport: write failed")
				t.failAll(fmt.Errorf("%w: %v", ErrConnReset, err))
				return
			}
		case <-t.closeCh:
			return
		}
	}
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	defer close(t.indicate)
	for {
		f, err := wire.ReadFrame(t.conn)
		if err != nil {
			if !t.isClosed() {
				if errors.Is(err, io.EOF) {
					t.log.Info("transport: daemon closed connection")
				} else {
					t.log.WithError(err).Error("transport: read failed")
				}
			}
			t.failAll(fmt.Errorf("%w: %v", ErrConnReset, err))
			return
		}

		switch f.Flag {
		case wire.FlagIND:
			select {
			case t.indicate <- f:
			case <-t.closeCh:
				return
			}
		case wire.FlagCNF, wire.FlagRSP:
			t.mu.Lock()
			ch, ok := t.pending[f.Ref]
			if ok {
				delete(t.pending, f.Ref)
			}
			t.mu.Unlock()
			if ok {
				ch <- result{frame: f}
			}
		default:
			t.log.Warnf("transport: unexpected flag %v on received frame", f.Flag)
		}
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) failAll(err error) {
	t.mu.Lock()
	t.closed = true
	pending := t.pending
	t.pending = make(map[uint32]chan result)
	select {
	case <-t.closeCh:
	default:
		close(t.closeCh)
	}
	t.mu.Unlock()
	for _, ch := range pending {
		ch <- result{err: err}
	}
}
