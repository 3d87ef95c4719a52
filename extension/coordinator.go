package extension

import (
	"sync"

	"go.uber.org/zap"
)

// RuntimeCoordinator maps mount containers to their runtime connections.
// The mount manager registers a connection when a module mounts and
// removes it on unmount, so hosts can resolve from a container back to
// the bridges living in it.
type RuntimeCoordinator interface {
	// Register records or merges a connection for the container
	Register(container Container, conn RuntimeConnection)

	// Get returns the connection registered for the container
	Get(container Container) (RuntimeConnection, bool)

	// RemoveBridge drops one entry's bridge from the container's
	// connection. The container itself is removed only once its bridge
	// map becomes empty, so other entries mounted into the same
	// container keep their connection.
	RemoveBridge(container Container, entryID string)

	// Unregister drops the container's whole connection. Unknown
	// containers are a no-op.
	Unregister(container Container)
}

// NewRuntimeCoordinator creates the default coordinator. Entries live
// until explicitly removed; the mount manager guarantees that by
// pairing every Register with a RemoveBridge on unmount.
func NewRuntimeCoordinator(log *zap.SugaredLogger) RuntimeCoordinator {
	return &coordinator{
		connections: make(map[Container]RuntimeConnection),
		log:         log.Named("coordinator"),
	}
}

type coordinator struct {
	mu          sync.RWMutex
	connections map[Container]RuntimeConnection
	log         *zap.SugaredLogger
}

// Register merges the connection into any existing one for the container:
// a non-nil host replaces the stored host, and bridges are merged by
// entry id with new entries winning.
func (c *coordinator) Register(container Container, conn RuntimeConnection) {
	if container == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.connections[container]
	if !ok {
		if conn.Bridges == nil {
			conn.Bridges = make(map[string]*HostBridge)
		}
		c.connections[container] = conn
		return
	}

	if conn.Host != nil {
		existing.Host = conn.Host
	}
	if existing.Bridges == nil {
		existing.Bridges = make(map[string]*HostBridge)
	}
	for entryID, bridge := range conn.Bridges {
		existing.Bridges[entryID] = bridge
	}
	c.connections[container] = existing
}

func (c *coordinator) Get(container Container) (RuntimeConnection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.connections[container]
	return conn, ok
}

func (c *coordinator) RemoveBridge(container Container, entryID string) {
	if container == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, ok := c.connections[container]
	if !ok {
		return
	}
	delete(conn.Bridges, entryID)
	if len(conn.Bridges) == 0 {
		delete(c.connections, container)
		return
	}
	c.connections[container] = conn
}

func (c *coordinator) Unregister(container Container) {
	if container == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.connections, container)
}
