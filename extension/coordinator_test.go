package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorRegisterGetUnregister(t *testing.T) {
	c := NewRuntimeCoordinator(testLogger())
	container := &fakeContainer{id: "slot-1"}
	bridge := &HostBridge{extensionID: "ext.w1"}

	c.Register(container, RuntimeConnection{
		Host:    "host-handle",
		Bridges: map[string]*HostBridge{"entry.widget": bridge},
	})

	conn, ok := c.Get(container)
	require.True(t, ok)
	assert.Equal(t, "host-handle", conn.Host)
	assert.Same(t, bridge, conn.Bridges["entry.widget"])

	c.Unregister(container)
	_, ok = c.Get(container)
	assert.False(t, ok)

	// Unknown containers are a no-op
	c.Unregister(container)
}

func TestCoordinatorMergesConnections(t *testing.T) {
	c := NewRuntimeCoordinator(testLogger())
	container := &fakeContainer{id: "slot-1"}
	first := &HostBridge{extensionID: "ext.a"}
	second := &HostBridge{extensionID: "ext.b"}

	c.Register(container, RuntimeConnection{Host: "host-handle"})
	c.Register(container, RuntimeConnection{Bridges: map[string]*HostBridge{"entry.a": first}})
	c.Register(container, RuntimeConnection{Bridges: map[string]*HostBridge{"entry.b": second}})

	conn, ok := c.Get(container)
	require.True(t, ok)
	assert.Equal(t, "host-handle", conn.Host, "merging keeps the existing host")
	assert.Same(t, first, conn.Bridges["entry.a"])
	assert.Same(t, second, conn.Bridges["entry.b"])
}

func TestCoordinatorRemoveBridge(t *testing.T) {
	c := NewRuntimeCoordinator(testLogger())
	container := &fakeContainer{id: "slot-1"}
	first := &HostBridge{extensionID: "ext.a"}
	second := &HostBridge{extensionID: "ext.b"}

	c.Register(container, RuntimeConnection{Bridges: map[string]*HostBridge{
		"entry.a": first,
		"entry.b": second,
	}})

	c.RemoveBridge(container, "entry.a")
	conn, ok := c.Get(container)
	require.True(t, ok, "container stays while bridges remain")
	assert.Nil(t, conn.Bridges["entry.a"])
	assert.Same(t, second, conn.Bridges["entry.b"])

	c.RemoveBridge(container, "entry.b")
	_, ok = c.Get(container)
	assert.False(t, ok, "empty bridge map removes the container")

	// Unknown containers and entries are a no-op
	c.RemoveBridge(container, "entry.a")
	c.RemoveBridge(nil, "entry.a")
}

func TestCoordinatorDistinctContainers(t *testing.T) {
	c := NewRuntimeCoordinator(testLogger())
	a := &fakeContainer{id: "a"}
	b := &fakeContainer{id: "b"}

	c.Register(a, RuntimeConnection{Host: "host-a"})
	c.Register(b, RuntimeConnection{Host: "host-b"})

	connA, _ := c.Get(a)
	connB, _ := c.Get(b)
	assert.Equal(t, "host-a", connA.Host)
	assert.Equal(t, "host-b", connB.Host)

	c.Unregister(a)
	_, ok := c.Get(b)
	assert.True(t, ok, "unregistering one container leaves others alone")
}

func TestCoordinatorNilContainer(t *testing.T) {
	c := NewRuntimeCoordinator(testLogger())
	c.Register(nil, RuntimeConnection{Host: "x"})
	_, ok := c.Get(nil)
	assert.False(t, ok)
}
