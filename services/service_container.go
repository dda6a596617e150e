package services

import (
	"time"

	"github.com/mbocsi/athub/server"
)

// ServiceManagerImpl manages all services with dependency injection
type ServiceManagerImpl struct {
	coordinator *server.Coordinator
	services    *ServiceContainer
}

// NewServiceManager creates a new service manager. pollTimeout is the default
// wait for passive device replies.
func NewServiceManager(coordinator *server.Coordinator, pollTimeout time.Duration) *ServiceManagerImpl {
	sm := &ServiceManagerImpl{
		coordinator: coordinator,
	}

	sm.services = &ServiceContainer{
		Device:    NewDeviceService(coordinator.Registery),
		Output:    NewOutputService(coordinator),
		Poll:      NewPollService(coordinator, pollTimeout),
		Event:     NewEventService(coordinator.Broker),
		Transport: NewTransportService(coordinator),
	}

	return sm
}

// GetServices returns the service container
func (sm *ServiceManagerImpl) GetServices() *ServiceContainer {
	return sm.services
}

// Coordinator returns the coordinator the services act on
func (sm *ServiceManagerImpl) Coordinator() *server.Coordinator {
	return sm.coordinator
}
