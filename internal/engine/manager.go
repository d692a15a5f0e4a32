package engine

import (
	"sync"

	"github.com/cmbsolver/tuitcptester/internal/logging"
	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// Manager owns a set of instances keyed by id. List order is creation
// order, which keeps display rows stable across refreshes.
type Manager struct {
	mu    sync.RWMutex
	insts map[string]*Instance
	order []string
}

func NewManager() *Manager {
	return &Manager{insts: make(map[string]*Instance)}
}

// Create validates the config, builds an instance and registers it.
func (m *Manager) Create(cfg types.ConnectionConfig) (*Instance, error) {
	inst, err := NewInstance(cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.insts[inst.ID()] = inst
	m.order = append(m.order, inst.ID())
	total := len(m.insts)
	m.mu.Unlock()

	logging.Info("connection created",
		logging.Field{Key: "id", Value: inst.ID()},
		logging.Field{Key: "name", Value: cfg.Name},
		logging.Field{Key: "role", Value: string(cfg.Role)},
		logging.Field{Key: "total", Value: total})
	return inst, nil
}

func (m *Manager) Get(id string) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.insts[id]
	if !ok {
		return nil, errs.ErrNotFound(id)
	}
	return inst, nil
}

// List returns every instance in creation order.
func (m *Manager) List() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Instance, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.insts[id])
	}
	return out
}

// Remove disposes the instance and forgets it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	inst, ok := m.insts[id]
	if !ok {
		m.mu.Unlock()
		return errs.ErrNotFound(id)
	}
	delete(m.insts, id)
	for n, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:n], m.order[n+1:]...)
			break
		}
	}
	m.mu.Unlock()

	inst.Dispose()
	logging.Info("connection removed",
		logging.Field{Key: "id", Value: id},
		logging.Field{Key: "name", Value: inst.Name()})
	return nil
}

// StopAll stops every instance but keeps them registered.
func (m *Manager) StopAll() {
	for _, inst := range m.List() {
		inst.Stop()
	}
}

// DisposeAll tears everything down. The manager stays usable for new
// Create calls afterwards.
func (m *Manager) DisposeAll() {
	m.mu.Lock()
	insts := make([]*Instance, 0, len(m.order))
	for _, id := range m.order {
		insts = append(insts, m.insts[id])
	}
	m.insts = make(map[string]*Instance)
	m.order = nil
	m.mu.Unlock()

	for _, inst := range insts {
		inst.Dispose()
	}
	logging.Info("all connections disposed",
		logging.Field{Key: "count", Value: len(insts)})
}
