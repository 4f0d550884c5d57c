// Package refs implements the reference table: the process-wide mapping from
// opaque handles to live Go values that logic programs refer to.
//
// Handles carry no data. A handle exists while it is present in the table and
// is invalidated explicitly (Clear) or en masse (Reset). There is no
// reference counting: a handle that is never cleared lives until Reset or
// process exit.
package refs

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/geolog/geolog/pkg/engine"
)

// Stopper is implemented by values that hold resources while they sit in the
// table, such as iterators over database rows. Clear and Reset stop them.
// Stop must be safe to call more than once.
type Stopper interface {
	Stop()
}

// Handle is an opaque token naming a value in the table. Inside term space it
// travels as the name of an atom.
type Handle string

// Manager is the reference table. Every operation takes the same lock.
type Manager struct {
	mu      sync.Mutex
	objects map[Handle]any
}

// NewManager creates an empty reference table.
func NewManager() *Manager {
	return &Manager{
		objects: make(map[Handle]any),
	}
}

// Create mints a fresh handle. The handle is not stored until Put.
func (m *Manager) Create() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newHandle()
}

// Put stores value under handle, overwriting any previous value.
func (m *Manager) Put(h Handle, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[h] = value
}

// Store mints a handle and stores value under it in one step.
func (m *Manager) Store(value any) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := newHandle()
	m.objects[h] = value
	return h
}

// Get returns the value stored under handle. A missing handle is a lookup
// fault classified as engine.ErrHandleNotFound.
func (m *Manager) Get(h Handle) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.objects[h]
	if !ok {
		return nil, engine.NewLookupError(string(h))
	}
	return value, nil
}

// Contains reports whether handle is in the table.
func (m *Manager) Contains(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[h]
	return ok
}

// Clear removes handle from the table and stops its value if it is a
// Stopper. Clearing an unknown handle is a no-op.
func (m *Manager) Clear(h Handle) {
	m.mu.Lock()
	value, ok := m.objects[h]
	delete(m.objects, h)
	m.mu.Unlock()
	if ok {
		stop(value)
	}
}

// Reset drops the entire table, stopping every Stopper in it.
func (m *Manager) Reset() {
	m.mu.Lock()
	old := m.objects
	m.objects = make(map[Handle]any)
	m.mu.Unlock()
	for _, value := range old {
		stop(value)
	}
}

func stop(value any) {
	if s, ok := value.(Stopper); ok {
		s.Stop()
	}
}

// Len returns the number of live handles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// newHandle returns a uuid with dashes replaced by underscores.
func newHandle() Handle {
	return Handle(strings.ReplaceAll(uuid.NewString(), "-", "_"))
}
