package configstore

import "sync"

// MemoryStore is an in-process fake of Store, used by tests and local
// development in place of a live etcd cluster. It reproduces the
// callback-on-mutation contract without any network dependency.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]map[string]string
	callbacks []ChangeCallback
	connected bool
}

// NewMemoryStore returns an empty, unconnected store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string]string)}
}

// Connect always succeeds immediately; there is no network to retry.
func (m *MemoryStore) Connect() error {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

// GetApplicationByKey returns a copy of the stored field map.
func (m *MemoryStore) GetApplicationByKey(name string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fields, ok := m.records[name]
	if !ok {
		return nil, errNotFound(name)
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

// ListApplicationNames returns every currently stored application name.
func (m *MemoryStore) ListApplicationNames() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.records))
	for name := range m.records {
		names = append(names, name)
	}
	return names, nil
}

// SubscribeToApplicationChanges registers callback for future Put/Delete
// calls. As with EtcdStore, records stored before subscribing are not
// replayed.
func (m *MemoryStore) SubscribeToApplicationChanges(callback ChangeCallback) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, callback)
	m.mu.Unlock()
}

// Close marks the store disconnected. Registered callbacks are retained
// so tests can inspect the store post-close if needed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// Put writes a record and fires EventHset to every subscriber, the way
// an external admin action against etcd would (spec.md §3).
func (m *MemoryStore) Put(name string, fields map[string]string) {
	m.mu.Lock()
	m.records[name] = fields
	callbacks := append([]ChangeCallback(nil), m.callbacks...)
	m.mu.Unlock()
	for _, cb := range callbacks {
		cb(name, EventHset)
	}
}

// Delete removes a record and fires EventHdel to every subscriber.
func (m *MemoryStore) Delete(name string) {
	m.mu.Lock()
	delete(m.records, name)
	callbacks := append([]ChangeCallback(nil), m.callbacks...)
	m.mu.Unlock()
	for _, cb := range callbacks {
		cb(name, EventHdel)
	}
}

type errNotFound string

func (e errNotFound) Error() string { return "no application record for " + string(e) }
