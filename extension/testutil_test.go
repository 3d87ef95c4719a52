package extension

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/mosaic/errors"
)

// fakePort is an in-memory TypeSystemPort for tests. Ids are valid when
// non-empty and not explicitly marked invalid.
type fakePort struct {
	mu          sync.Mutex
	invalid     map[string]bool
	fieldErrs   map[string][]FieldError
	registerErr map[string]error
	entities    map[string]TypeEntity
	bases       map[string]string
}

func newFakePort() *fakePort {
	return &fakePort{
		invalid:     make(map[string]bool),
		fieldErrs:   make(map[string][]FieldError),
		registerErr: make(map[string]error),
		entities:    make(map[string]TypeEntity),
		bases:       make(map[string]string),
	}
}

func (p *fakePort) markInvalid(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalid[id] = true
}

func (p *fakePort) failValidation(id string, fields ...FieldError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fieldErrs[id] = fields
}

func (p *fakePort) setBase(id, baseID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bases[id] = baseID
}

func (p *fakePort) IsValidTypeID(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return id != "" && !p.invalid[id]
}

func (p *fakePort) Register(entity TypeEntity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.registerErr[entity.ID]; err != nil {
		return err
	}
	p.entities[entity.ID] = entity
	if entity.BaseID != "" {
		p.bases[entity.ID] = entity.BaseID
	}
	return nil
}

func (p *fakePort) ValidateInstance(id string, instance interface{}) []FieldError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fieldErrs[id]
}

func (p *fakePort) IsTypeOf(id, baseID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for cur := id; cur != ""; cur = p.bases[cur] {
		if cur == baseID {
			return true
		}
	}
	return false
}

func (p *fakePort) Schema(id string) (json.RawMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entity, ok := p.entities[id]
	return entity.Schema, ok
}

func (p *fakePort) Query(pattern string, limit int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for id := range p.entities {
		if pattern == "" || strings.Contains(id, pattern) {
			out = append(out, id)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// fakeContainer is a comparable mount target.
type fakeContainer struct {
	id string
}

func (c *fakeContainer) ContainerID() string { return c.id }

// fakeModule records mount and unmount calls and hands the captured
// bridge back to the test.
type fakeModule struct {
	mu         sync.Mutex
	mountErr   error
	unmountErr error
	mounted    bool
	bridge     *ModuleBridge
	container  Container
	onMount    func(bridge *ModuleBridge)
}

func (m *fakeModule) Mount(ctx context.Context, container Container, bridge *ModuleBridge) error {
	m.mu.Lock()
	if m.mountErr != nil {
		err := m.mountErr
		m.mu.Unlock()
		return err
	}
	m.mounted = true
	m.bridge = bridge
	m.container = container
	onMount := m.onMount
	m.mu.Unlock()

	if onMount != nil {
		onMount(bridge)
	}
	return nil
}

func (m *fakeModule) Unmount(ctx context.Context, container Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unmountErr != nil {
		return m.unmountErr
	}
	m.mounted = false
	return nil
}

func (m *fakeModule) isMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// fakeLoader serves one module per entry id.
type fakeLoader struct {
	mu      sync.Mutex
	modules map[string]*fakeModule
	loadErr error
	loads   int
}

func newFakeLoader(modules map[string]*fakeModule) *fakeLoader {
	return &fakeLoader{modules: modules}
}

func (l *fakeLoader) CanHandle(entryID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.modules[entryID]
	return ok
}

func (l *fakeLoader) Load(ctx context.Context, entry Entry) (LoadedModule, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	module, ok := l.modules[entry.ID]
	if !ok {
		return nil, errors.Newf("no module for entry %q", entry.ID)
	}
	return module, nil
}

func (l *fakeLoader) loadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newTestRegistry(port TypeSystemPort, opts ...Option) *Registry {
	return New(Config{
		HostVersion:    "1.2.3",
		ExclusiveMount: true,
	}, port, testLogger(), opts...)
}

// okHandler succeeds and records every action it saw.
type recordingHandler struct {
	mu      sync.Mutex
	actions []Action
	err     error
}

func (h *recordingHandler) HandleAction(ctx context.Context, action Action) (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, action)
	return nil, h.err
}

func (h *recordingHandler) seen() []Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Action, len(h.actions))
	copy(out, h.actions)
	return out
}
