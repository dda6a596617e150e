package client

import (
	"errors"

	"github.com/mbocsi/athub/proto"
)

// ErrBadFrame wraps frames that arrived intact on the link but did not decode.
// The link itself is still usable.
var ErrBadFrame = errors.New("bad frame")

type Transport interface {
	Connect(addr string) error
	Send(msg *proto.Message) error
	Read() (*proto.Message, error) // for one-at-a-time processing
	Close() error
}
