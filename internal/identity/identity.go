package identity

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// ServerIdentity names this process in every response and tick notice.
type ServerIdentity struct {
	serviceName string
	serverID    string
}

// New builds a fully qualified id of the form service@host/instance. The
// instance part is a fresh uuid so restarts on the same host are
// distinguishable.
func New(serviceName string) ServerIdentity {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return ServerIdentity{
		serviceName: serviceName,
		serverID:    fmt.Sprintf("%s@%s/%s", serviceName, host, uuid.NewString()),
	}
}

// Fixed is for tests and tools that need a stable id.
func Fixed(serviceName, serverID string) ServerIdentity {
	return ServerIdentity{serviceName: serviceName, serverID: serverID}
}

func (s ServerIdentity) ServiceName() string { return s.serviceName }
func (s ServerIdentity) ServerID() string    { return s.serverID }
