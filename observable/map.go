package observable

import "sync"

// Entry is the observed state of one key. Present is false while the key is
// absent from the map.
type Entry[V comparable] struct {
	Value   V
	Present bool
}

// Map is a keyed collection of observable entries. Keys can be observed before
// they are inserted; such observers first see an absent Entry.
type Map[K comparable, V comparable] struct {
	mu     sync.Mutex
	cells  map[K]*cell[Entry[V]]
	closed bool
}

// NewMap returns an empty Map.
func NewMap[K comparable, V comparable]() *Map[K, V] {
	return &Map[K, V]{cells: make(map[K]*cell[Entry[V]])}
}

// Observe returns a stream of the entry for key.
func (m *Map[K, V]) Observe(key K) *Stream[Entry[V]] {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cells[key]
	if m.closed {
		s := newStream[Entry[V]]()
		if ok {
			s.push(c.value)
		} else {
			s.push(Entry[V]{})
		}
		s.finish()
		return s
	}
	if !ok {
		c = &cell[Entry[V]]{}
		m.cells[key] = c
	}
	return c.observe()
}

// Get returns the value stored for key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cells[key]; ok {
		return c.value.Value, c.value.Present
	}
	var zero V
	return zero, false
}

// Insert stores value under key and returns the previous value, if any.
func (m *Map[K, V]) Insert(key K, value V) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(key, value)
}

func (m *Map[K, V]) insertLocked(key K, value V) (V, bool) {
	next := Entry[V]{Value: value, Present: true}
	if c, ok := m.cells[key]; ok {
		old := c.replace(next)
		return old.Value, old.Present
	}
	m.cells[key] = &cell[Entry[V]]{value: next}
	var zero V
	return zero, false
}

// Remove deletes key and returns the value it held. Keys that are still
// observed are kept internally and their observers receive an absent Entry.
func (m *Map[K, V]) Remove(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(key)
}

func (m *Map[K, V]) removeLocked(key K) (V, bool) {
	c, ok := m.cells[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.purge() == 0 {
		delete(m.cells, key)
		return c.value.Value, c.value.Present
	}
	old := c.replace(Entry[V]{})
	return old.Value, old.Present
}

// Sync makes the map contain exactly entries. Unchanged keys emit nothing.
func (m *Map[K, V]) Sync(entries map[K]V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := make(map[K]struct{}, len(m.cells))
	for k := range m.cells {
		remaining[k] = struct{}{}
	}
	for k, v := range entries {
		delete(remaining, k)
		m.insertLocked(k, v)
	}
	for k := range remaining {
		m.removeLocked(k)
	}
}

// Has reports whether key is tracked internally, either present or observed.
func (m *Map[K, V]) Has(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cells[key]
	return ok
}

// Observers reports the number of live observers of key.
func (m *Map[K, V]) Observers(key K) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cells[key]; ok {
		return c.purge()
	}
	return 0
}

// Close ends every stream. Later mutations are still applied but nobody is
// notified; later observers receive a single item and then io.EOF.
func (m *Map[K, V]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, c := range m.cells {
		c.close()
	}
}
