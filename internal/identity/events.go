package identity

import "sync"

// broadcaster fans events out to listeners. Each subscriber has its own
// goroutine and an unbounded queue, so a slow listener never blocks the
// provider and every listener sees events in emission order.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
	logger Logger
}

func newBroadcaster(logger Logger) *broadcaster {
	return &broadcaster{
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

type subscriber struct {
	b    *broadcaster
	fn   Listener
	mu   sync.Mutex
	q    []Event
	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func (b *broadcaster) subscribe(fn Listener) *subscriber {
	s := &subscriber{
		b:    b,
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.stop()
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.run()
	return s
}

func (b *broadcaster) emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.push(e)
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *broadcaster) close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*subscriber]struct{})
	b.closed = true
	b.mu.Unlock()

	for s := range subs {
		s.stop()
	}
}

// Unsubscribe stops delivery. Events already queued are dropped.
func (s *subscriber) Unsubscribe() {
	s.b.mu.Lock()
	delete(s.b.subs, s)
	s.b.mu.Unlock()
	s.stop()
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) push(e Event) {
	s.mu.Lock()
	s.q = append(s.q, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		batch := s.q
		s.q = nil
		s.mu.Unlock()

		for _, e := range batch {
			select {
			case <-s.done:
				return
			default:
			}
			s.deliver(e)
		}
	}
}

func (s *subscriber) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.b.logger.Error("identity listener panic recovered", "panic", r, "event", e.Kind)
		}
	}()
	s.fn(e)
}
