package client

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
)

// mDNS service types the gateway announces.
const (
	serviceTCP       = "_athub-tcp._tcp"
	serviceWebSocket = "_athub-ws._tcp"
)

// DiscoveredService represents a discovered athub gateway
type DiscoveredService struct {
	ServiceName string
	Address     string
	Port        int
	Transport   string // "tcp" or "websocket"
	TXTRecords  []string
}

// Addr returns what the matching Transport's Connect expects.
func (s *DiscoveredService) Addr() string {
	hostPort := net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
	if s.Transport == "websocket" {
		return "ws://" + hostPort + "/"
	}
	return hostPort
}

// discoverService discovers a specific gateway service type using mDNS
func discoverService(serviceType string, timeout time.Duration) (*DiscoveredService, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	entriesCh := make(chan *mdns.ServiceEntry, 4)

	// Start discovery in background
	go func() {
		defer close(entriesCh)
		if err := mdns.Lookup(serviceType, entriesCh); err != nil {
			slog.Warn("mDNS lookup failed", "service", serviceType, "error", err)
		}
	}()

	// Wait for first result or timeout
	select {
	case entry := <-entriesCh:
		if entry == nil {
			return nil, fmt.Errorf("no %s service found", serviceType)
		}
		service, err := serviceFromEntry(serviceType, entry)
		if err != nil {
			return nil, err
		}

		slog.Info("Discovered athub gateway",
			"service_name", service.ServiceName,
			"address", service.Address,
			"port", service.Port,
			"transport", service.Transport,
		)
		return service, nil

	case <-time.After(timeout):
		return nil, fmt.Errorf("mDNS discovery timeout for %s", serviceType)
	}
}

func serviceFromEntry(serviceType string, entry *mdns.ServiceEntry) (*DiscoveredService, error) {
	var address string
	if entry.AddrV4 != nil {
		address = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		address = entry.AddrV6.String()
	} else {
		return nil, fmt.Errorf("no valid address found for service")
	}

	var transport string
	switch serviceType {
	case serviceTCP:
		transport = "tcp"
	case serviceWebSocket:
		transport = "websocket"
	}

	return &DiscoveredService{
		ServiceName: entry.Name,
		Address:     address,
		Port:        entry.Port,
		Transport:   transport,
		TXTRecords:  entry.InfoFields,
	}, nil
}

// DiscoverTCPService discovers the first available TCP gateway
func DiscoverTCPService(timeout time.Duration) (*DiscoveredService, error) {
	return discoverService(serviceTCP, timeout)
}

// DiscoverWebSocketService discovers the first available WebSocket gateway
func DiscoverWebSocketService(timeout time.Duration) (*DiscoveredService, error) {
	return discoverService(serviceWebSocket, timeout)
}
