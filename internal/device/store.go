package device

import (
	"sync"
	"time"
)

// Logger defines the logging interface used by the Store.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ChangeKind describes which mutation produced a Change.
type ChangeKind string

// Change kinds emitted by the Store.
const (
	ChangeToggled  ChangeKind = "toggled"
	ChangeAdjusted ChangeKind = "adjusted"
	ChangeAdded    ChangeKind = "added"
)

// Change is delivered to subscribers after a mutation took effect.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	Device Device     `json:"device"`
	At     time.Time  `json:"at"`
}

// Listener receives store changes. Listeners run synchronously in mutation
// order and must not mutate the Store they are subscribed to.
type Listener func(Change)

// Store owns the current Registry snapshot for a running service.
//
// Mutations are serialised and replace the whole snapshot; readers get an
// immutable Registry they can use without further locking. Listeners are
// invoked outside the snapshot lock but in the order mutations were applied.
//
// All public methods are thread-safe.
type Store struct {
	mu      sync.RWMutex // protects current
	current Registry

	notifyMu sync.Mutex // orders listener delivery

	listenersMu sync.RWMutex
	listeners   map[uint64]Listener
	nextID      uint64

	logger Logger
	now    func() time.Time
}

// NewStore creates a store starting from the given snapshot.
func NewStore(initial Registry) *Store {
	return &Store{
		current:   initial,
		listeners: make(map[uint64]Listener),
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Snapshot returns the current registry.
func (s *Store) Snapshot() Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Toggle inverts the status of the device with the given identifier.
// It reports false, and notifies nobody, when the identifier is unknown.
func (s *Store) Toggle(id string) (Device, bool) {
	return s.apply(ChangeToggled, func(r Registry) (Registry, *Device) {
		return r.toggle(id)
	})
}

// Adjust moves the device's value up or down by one.
// It reports false, and notifies nobody, when the identifier is unknown.
func (s *Store) Adjust(id string, increase bool) (Device, bool) {
	return s.apply(ChangeAdjusted, func(r Registry) (Registry, *Device) {
		return r.adjust(id, increase)
	})
}

// Add validates the draft and appends a new device.
//
// Returns the validation error unchanged when the draft is incomplete; the
// registry is not modified in that case.
func (s *Store) Add(d Draft) (Device, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return Device{}, err
	}

	dev, _ := s.apply(ChangeAdded, func(r Registry) (Registry, *Device) {
		next, added := r.Add(d)
		return next, &added
	})
	return dev, nil
}

// Subscribe registers a listener for future changes.
// The returned function removes it and is safe to call more than once.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// ListenerCount returns the number of registered listeners.
func (s *Store) ListenerCount() int {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	return len(s.listeners)
}

// apply runs a registry transformation and publishes the resulting change.
// The notify lock is taken before the snapshot lock is released so listeners
// see changes in the order they were applied.
func (s *Store) apply(kind ChangeKind, fn func(Registry) (Registry, *Device)) (Device, bool) {
	s.mu.Lock()
	next, dev := fn(s.current)
	if dev == nil {
		s.mu.Unlock()
		return Device{}, false
	}
	s.current = next
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.logger.Debug("device changed", "kind", kind, "id", dev.ID)
	s.notify(Change{Kind: kind, Device: *dev, At: s.now().UTC()})
	return *dev, true
}

func (s *Store) notify(c Change) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		s.deliver(l, c)
	}
}

// deliver calls a listener, containing any panic so one bad subscriber
// cannot break the mutation path.
func (s *Store) deliver(l Listener, c Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("device listener panic recovered", "panic", r, "id", c.Device.ID)
		}
	}()
	l(c.cloned())
}

func (c Change) cloned() Change {
	c.Device = c.Device.Clone()
	return c
}
