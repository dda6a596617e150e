package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mbocsi/athub/proto"
	"github.com/mbocsi/athub/server"
	"github.com/mbocsi/athub/services"
)

// sseBuffer is how many events a slow browser may fall behind before events
// are dropped.
const sseBuffer = 32

// SSEClient is a broker subscriber that streams device messages to one
// browser as Server-Sent Events.
type SSEClient struct {
	events chan services.MessageEvent
	server.ClientMetadata
}

func NewSSEClient(remote string) *SSEClient {
	return &SSEClient{
		events: make(chan services.MessageEvent, sseBuffer),
		ClientMetadata: server.ClientMetadata{
			Id:     "sse-" + uuid.NewString(),
			Name:   "Live events",
			Remote: remote,
		},
	}
}

func (c *SSEClient) Meta() *server.ClientMetadata {
	return &c.ClientMetadata
}

// Send queues msg for the stream without blocking the broker.
func (c *SSEClient) Send(msg *proto.Message) error {
	select {
	case c.events <- services.NewMessageEvent(msg, time.Now()):
		return nil
	default:
		return fmt.Errorf("event stream %s is full", c.Id)
	}
}

// stream writes queued events to wr until done is closed.
func (c *SSEClient) stream(wr http.ResponseWriter, flusher http.Flusher, done <-chan struct{}, closing <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-closing:
			return
		case event := <-c.events:
			data, err := json.Marshal(event)
			if err != nil {
				slog.Error("Failed to encode event", "client", c.Id, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(wr, "event: message\ndata: %s\n\n", data); err != nil {
				slog.Debug("Event stream closed", "client", c.Id, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}
