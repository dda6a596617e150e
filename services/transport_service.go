package services

import (
	"github.com/mbocsi/athub/server"
)

// TransportServiceImpl implements TransportService
type TransportServiceImpl struct {
	coordinator *server.Coordinator
}

// NewTransportService creates a new transport service. Transports are read
// from the coordinator on every call, so late registrations show up.
func NewTransportService(coordinator *server.Coordinator) TransportService {
	return &TransportServiceImpl{
		coordinator: coordinator,
	}
}

// ListTransports returns all transport information
func (ts *TransportServiceImpl) ListTransports() ([]TransportInfo, error) {
	transports := ts.coordinator.Transports
	result := make([]TransportInfo, 0, len(transports))

	for i, transport := range transports {
		result = append(result, convertTransportMeta(i, transport))
	}

	return result, nil
}

// GetTransport returns a specific transport by index
func (ts *TransportServiceImpl) GetTransport(index int) (*TransportInfo, error) {
	transports := ts.coordinator.Transports
	if index < 0 || index >= len(transports) {
		return nil, ServiceError{
			Code:    ErrCodeNotFound,
			Message: "Transport index out of range",
		}
	}

	info := convertTransportMeta(index, transports[index])
	return &info, nil
}

// GetTransportStats returns aggregate transport and device statistics
func (ts *TransportServiceImpl) GetTransportStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	transports := ts.coordinator.Transports
	connectedTransports := 0
	totalConnections := 0

	for _, transport := range transports {
		meta := transport.Meta()
		if meta.Connected {
			connectedTransports++
		}
		totalConnections += len(meta.Clients)
	}

	devices := ts.coordinator.Registery.List()
	online := 0
	for _, d := range devices {
		if d.Online {
			online++
		}
	}

	stats["total_transports"] = len(transports)
	stats["connected_transports"] = connectedTransports
	stats["total_connections"] = totalConnections
	stats["total_devices"] = len(devices)
	stats["online_devices"] = online

	return stats, nil
}
