// Package mockdaemon is minimal test scaffolding standing in for the real
// PeerDrive daemon: it speaks just enough of the framed wire protocol to
// drive transport- and client-level tests without a real server process.
package mockdaemon

import (
	"fmt"
	"net"

	"github.com/orbaslabs/peerdrive/internal/rpcbody"
	"github.com/orbaslabs/peerdrive/internal/wire"
)

// Server accepts a single test connection at a time.
type Server struct {
	ln net.Listener
}

// Listen starts listening on an ephemeral loopback port.
func Listen() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln}, nil
}

// Addr returns the host:port string a client would dial.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.ln.Close() }

// Accept blocks for the next incoming connection.
func (s *Server) Accept() (*Conn, error) {
	c, err := s.ln.Accept()
	if err != nil {
		return nil, err
	}
	return &Conn{c: c}, nil
}

// Conn is one accepted connection, with frame-level helpers.
type Conn struct {
	c net.Conn
}

func (c *Conn) ReadFrame() (wire.Frame, error) { return wire.ReadFrame(c.c) }
func (c *Conn) WriteFrame(f wire.Frame) error { return wire.WriteFrame(c.c, f) }
func (c *Conn) Close() error { return c.c.Close() }

// Handshake reads the client's Init REQ and replies with an Init CNF
// advertising maxPacketSize, then returns the cookie bytes the client sent
// so the caller can assert on them.
func (c *Conn) Handshake(maxPacketSize uint64) ([]byte, error) {
	f, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	if f.Code != wire.MsgInit || f.Flag != wire.FlagREQ {
		return nil, fmt.Errorf("mockdaemon: expected Init REQ, got %v/%v", f.Code, f.Flag)
	}
	msg, err := rpcbody.Parse(f.Payload)
	if err != nil {
		return nil, err
	}
	cookie, _ := msg.Bytes(3)

	b := rpcbody.NewBuilder()
	b.PutUint64(1, 1)
	b.PutUint64(2, 0)
	b.PutUint64(3, maxPacketSize)
	return cookie, c.WriteFrame(wire.Frame{Code: wire.MsgInit, Flag: wire.FlagCNF, Ref: f.Ref, Payload: b.Bytes()})
}

// Reply sends a CNF frame matching req's ref and code.
func (c *Conn) Reply(req wire.Frame, payload []byte) error {
	return c.WriteFrame(wire.Frame{Code: req.Code, Flag: wire.FlagCNF, Ref: req.Ref, Payload: payload})
}

// ReplyError sends an Error CNF for req.
func (c *Conn) ReplyError(req wire.Frame, code int32, message string) error {
	b := rpcbody.NewBuilder()
	b.PutInt64(1, int64(code))
	b.PutString(2, message)
	return c.WriteFrame(wire.Frame{Code: wire.MsgError, Flag: wire.FlagCNF, Ref: req.Ref, Payload: b.Bytes()})
}

// Indicate sends an unsolicited IND frame (ref 0).
func (c *Conn) Indicate(code wire.MsgType, payload []byte) error {
	return c.WriteFrame(wire.Frame{Code: code, Flag: wire.FlagIND, Ref: 0, Payload: payload})
}
