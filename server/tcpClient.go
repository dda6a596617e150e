package server

import (
	"log/slog"
	"net"
	"sync"

	"github.com/mbocsi/athub/proto"
)

type TCPClient struct {
	ClientMetadata
	conn net.Conn
	wmu  sync.Mutex
}

func NewTCPClient(conn net.Conn, t Transport) *TCPClient {
	return &TCPClient{
		conn:           conn,
		ClientMetadata: ClientMetadata{Id: generateClientId("tcp"), Remote: conn.RemoteAddr().String(), Transport: t},
	}
}

func (c *TCPClient) Send(msg *proto.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := proto.WriteMessage(c.conn, msg); err != nil {
		return err
	}
	slog.Debug("Sent Message", "to", c.Id, "device", msg.IDString(), "packets", msg.Len())
	return nil
}

func (c *TCPClient) Meta() *ClientMetadata {
	return &c.ClientMetadata
}
