package conversation

import (
	"sync"
	"time"

	chatservice "github.com/oakdemir/pharmachat/internal/service/chat"
)

// Manager hands out one controller per owner so optimistic state and the
// single-flight guarantee survive across requests. Controllers are built
// from explicitly injected services; there is no package-level client.
type Manager struct {
	svc     *chatservice.Service
	gateway Gateway
	timeout time.Duration

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewManager wires the shared services used by all controllers.
func NewManager(svc *chatservice.Service, gateway Gateway, timeout time.Duration) *Manager {
	return &Manager{
		svc:         svc,
		gateway:     gateway,
		timeout:     timeout,
		controllers: make(map[string]*Controller),
	}
}

// Controller returns the owner's controller, creating it on first use.
func (m *Manager) Controller(ownerID string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctrl, ok := m.controllers[ownerID]
	if !ok {
		ctrl = NewController(ownerID, m.svc, m.gateway, m.timeout)
		m.controllers[ownerID] = ctrl
	}
	return ctrl
}
