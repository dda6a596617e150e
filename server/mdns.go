package server

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/hashicorp/mdns"
)

// mDNS service types announced for each transport protocol.
const (
	ServiceTCP       = "_athub-tcp._tcp"
	ServiceWebSocket = "_athub-ws._tcp"
)

type Advertisement struct {
	service string
	server  *mdns.Server
}

func serviceFor(protocol string) string {
	switch protocol {
	case "tcp":
		return ServiceTCP
	case "websocket":
		return ServiceWebSocket
	}
	return ""
}

// Advertise announces a network transport on the local link. Transports that
// are not reachable over IP return nil and no error.
func Advertise(instance string, t Transport) (*Advertisement, error) {
	meta := t.Meta()
	service := serviceFor(meta.Protocol)
	if service == "" {
		return nil, nil
	}

	_, portStr, err := net.SplitHostPort(meta.Address)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", meta.Address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		return nil, fmt.Errorf("transport %s has no fixed port", meta.ID)
	}

	info := []string{"protocol=" + meta.Protocol, "name=" + meta.Name}
	svc, err := mdns.NewMDNSService(instance, service, "", "", port, nil, info)
	if err != nil {
		return nil, err
	}
	srv, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, err
	}

	slog.Info("Advertising transport", "service", service, "instance", instance, "port", port)
	return &Advertisement{service: service, server: srv}, nil
}

func (a *Advertisement) Shutdown() {
	if err := a.server.Shutdown(); err != nil {
		slog.Warn("mDNS shutdown failed", "service", a.service, "error", err)
	}
}
