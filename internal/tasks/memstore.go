package tasks

import "sync"

// MemStore is an in-memory Store implementation. It is exported for use as
// a test double in cross-package tests. It is safe for concurrent use.
type MemStore struct {
	ops
	mu sync.Mutex
	l  ledger
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a new empty MemStore.
func NewMemStore(opts ...Option) *MemStore {
	return NewMemStoreFrom(0, nil, opts...)
}

// NewMemStoreFrom returns a MemStore seeded with existing tasks and the id
// high-water mark.
func NewMemStoreFrom(seq int, existing []Task, opts ...Option) *MemStore {
	o := buildOptions(opts)
	m := &MemStore{l: ledger{seq: seq}}
	for _, t := range existing {
		m.l.tasks = append(m.l.tasks, t.clone())
	}
	m.ops = ops{b: m, rec: o.rec, actor: o.actor}
	return m
}

func (m *MemStore) view(fn func(l *ledger) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&m.l)
}

// update applies fn to a copy and commits it only on success.
func (m *MemStore) update(fn func(l *ledger) (bool, error), committed func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.l.clone()
	changed, err := fn(&next)
	if err != nil || !changed {
		return err
	}
	m.l = next
	committed()
	return nil
}
