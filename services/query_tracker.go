package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mbocsi/athub/proto"
	"github.com/mbocsi/athub/server"
)

// QueryResponse is the first message a device sent after a query.
type QueryResponse struct {
	QueryID   string
	Device    server.Device
	Message   *proto.Message
	Timestamp time.Time
}

// QueryTracker correlates queries with replies. Devices have no request ids,
// so the next message from the queried device is the reply.
type QueryTracker struct {
	queries map[proto.DeviceID]map[string]chan QueryResponse
	timeout time.Duration
	mu      sync.Mutex
}

// NewQueryTracker creates a new query tracker
func NewQueryTracker(defaultTimeout time.Duration) *QueryTracker {
	return &QueryTracker{
		queries: make(map[proto.DeviceID]map[string]chan QueryResponse),
		timeout: defaultTimeout,
	}
}

// SendQuery registers a waiter for id, calls send and waits for the reply.
// Errors from send are returned unchanged.
func (qt *QueryTracker) SendQuery(ctx context.Context, id proto.DeviceID, send func() error, timeout time.Duration) (*QueryResponse, error) {
	queryID := uuid.New().String()
	responseChan := make(chan QueryResponse, 1)

	queryTimeout := qt.timeout
	if timeout > 0 {
		queryTimeout = timeout
	}

	// Register before sending so a fast reply is not missed.
	qt.mu.Lock()
	waiters, ok := qt.queries[id]
	if !ok {
		waiters = make(map[string]chan QueryResponse)
		qt.queries[id] = waiters
	}
	waiters[queryID] = responseChan
	qt.mu.Unlock()

	defer qt.remove(id, queryID)

	if err := send(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(queryTimeout)
	defer timer.Stop()

	select {
	case response := <-responseChan:
		return &response, nil
	case <-timer.C:
		return nil, ServiceError{
			Code:    ErrCodeTimeout,
			Message: fmt.Sprintf("No reply from %s after %v", id, queryTimeout),
		}
	case <-ctx.Done():
		return nil, ServiceError{
			Code:    ErrCodeTimeout,
			Message: "Query cancelled",
			Cause:   ctx.Err(),
		}
	}
}

func (qt *QueryTracker) remove(id proto.DeviceID, queryID string) {
	qt.mu.Lock()
	defer qt.mu.Unlock()
	waiters := qt.queries[id]
	delete(waiters, queryID)
	if len(waiters) == 0 {
		delete(qt.queries, id)
	}
}

// HandleResponse hands msg to every query waiting on its device. It reports
// whether any query was answered.
func (qt *QueryTracker) HandleResponse(device server.Device, msg *proto.Message) bool {
	qt.mu.Lock()
	defer qt.mu.Unlock()

	waiters, exists := qt.queries[device.ID]
	if !exists {
		return false
	}

	now := time.Now()
	answered := false
	for queryID, ch := range waiters {
		select {
		case ch <- QueryResponse{QueryID: queryID, Device: device, Message: msg, Timestamp: now}:
			answered = true
		default:
			// already answered
		}
	}
	return answered
}

// Pending returns the number of unanswered queries for id.
func (qt *QueryTracker) Pending(id proto.DeviceID) int {
	qt.mu.Lock()
	defer qt.mu.Unlock()
	return len(qt.queries[id])
}
