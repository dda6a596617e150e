package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/mbocsi/athub/proto"
)

// TCPTransport carries length-prefixed frames over a TCP stream.
type TCPTransport struct {
	conn   net.Conn
	reader *bufio.Reader
	wmu    sync.Mutex
}

func NewTCPTransport() *TCPTransport {
	return &TCPTransport{}
}

func (t *TCPTransport) Connect(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	return nil
}

func (t *TCPTransport) Send(msg *proto.Message) error {
	if t.conn == nil {
		return fmt.Errorf("transport is not connected")
	}
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return proto.WriteMessage(t.conn, msg)
}

func (t *TCPTransport) Read() (*proto.Message, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("transport is not connected")
	}
	frame, err := proto.ReadFrame(t.reader)
	if errors.Is(err, proto.ErrEmptyFrame) {
		return nil, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	if err != nil {
		return nil, err
	}
	msg, err := proto.Decode(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	return msg, nil
}

func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
