package server

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mbocsi/athub/proto"
)

type WSClient struct {
	ClientMetadata
	conn *websocket.Conn
	wmu  sync.Mutex // gorilla allows one concurrent writer
}

func NewWSClient(conn *websocket.Conn, remote string, t Transport) *WSClient {
	return &WSClient{
		conn:           conn,
		ClientMetadata: ClientMetadata{Id: generateClientId("ws"), Remote: remote, Transport: t},
	}
}

func (c *WSClient) Send(msg *proto.Message) error {
	data, err := proto.Encode(msg)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	err = c.conn.WriteMessage(websocket.BinaryMessage, data)
	c.wmu.Unlock()
	if err != nil {
		return err
	}

	slog.Debug("Sent WebSocket Message", "to", c.Id, "device", msg.IDString(), "size", len(data))
	return nil
}

func (c *WSClient) Meta() *ClientMetadata {
	return &c.ClientMetadata
}
