// Package dap is the Debug Adapter Protocol backend of the session layer.
//
// Transport frames messages over a connection, Client matches responses to
// requests and hands every other message to a handler on its reader
// goroutine, and Backend drives a debug adapter (dlv dap, lldb-dap,
// gdb --interpreter=dap) through a Connector to implement backend.Backend.
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/google/go-dap"
)

// ErrClosed is returned once the adapter connection is gone, whichever side
// closed it.
var ErrClosed = stderrors.New("debug adapter connection closed")

// Transport frames DAP messages over one adapter connection. Sends are
// serialized; Receive is only called from the client's reader goroutine.
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader

	mu     sync.Mutex
	writer *bufio.Writer
	seq    int
	closed bool
}

// NewTCPTransport dials a debug adapter listening on address.
func NewTCPTransport(address string) (*Transport, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DAP server at %s: %w", address, err)
	}
	return NewConnTransport(conn), nil
}

// NewConnTransport wraps an established connection.
func NewConnTransport(conn io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		seq:    1,
	}
}

// NewStdioTransport talks to a spawned adapter over its stdin and stdout.
func NewStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser) *Transport {
	return NewConnTransport(&stdioConn{in: stdin, out: stdout})
}

type stdioConn struct {
	in  io.WriteCloser
	out io.ReadCloser
}

func (s *stdioConn) Read(p []byte) (int, error)  { return s.out.Read(p) }
func (s *stdioConn) Write(p []byte) (int, error) { return s.in.Write(p) }

func (s *stdioConn) Close() error {
	return stderrors.Join(s.in.Close(), s.out.Close())
}

// isClosedErr reports whether err means the connection is gone rather than
// that a frame was malformed.
func isClosedErr(err error) bool {
	return stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, io.ErrClosedPipe) ||
		stderrors.Is(err, net.ErrClosed) ||
		stderrors.Is(err, os.ErrClosed)
}

// NextSeq returns the next request sequence number.
func (t *Transport) NextSeq() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := t.seq
	t.seq++
	return seq
}

// Send writes and flushes msg. It returns ErrClosed after Close or once the
// peer has gone away.
func (t *Transport) Send(msg dap.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}

	err := dap.WriteProtocolMessage(t.writer, msg)
	if err == nil {
		err = t.writer.Flush()
	}
	if err != nil {
		if isClosedErr(err) {
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return fmt.Errorf("failed to write DAP message: %w", err)
	}
	return nil
}

// Receive reads the next message. A connection that is gone yields an error
// wrapping ErrClosed; go-dap decode errors are returned unchanged so the
// caller can skip the frame.
func (t *Transport) Receive() (dap.Message, error) {
	msg, err := dap.ReadProtocolMessage(t.reader)
	if err == nil {
		return msg, nil
	}
	if isClosedErr(err) {
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil, fmt.Errorf("failed to read DAP message: %w", err)
}

// Close closes the connection. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}
