package channel

import "sync"

// dispatcher delivers updates to one context's handlers on a single
// goroutine, so handlers run in enqueue order and never on the publisher's
// stack.
type dispatcher struct {
	mu       sync.Mutex
	handlers map[Key]map[int]Handler
	nextID   int
	queue    []Update
	wake     chan struct{}
	done     chan struct{}
	closed   bool
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		handlers: make(map[Key]map[int]Handler),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) subscribe(key Key, handler Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return func() {}
	}

	id := d.nextID
	d.nextID++
	if d.handlers[key] == nil {
		d.handlers[key] = make(map[int]Handler)
	}
	d.handlers[key][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.handlers[key], id)
			d.mu.Unlock()
		})
	}
}

func (d *dispatcher) enqueue(u Update) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, u)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) loop() {
	for {
		select {
		case <-d.wake:
			d.drain()
		case <-d.done:
			return
		}
	}
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 || d.closed {
			d.mu.Unlock()
			return
		}
		u := d.queue[0]
		d.queue = d.queue[1:]
		targets := make([]Handler, 0, len(d.handlers[u.Key]))
		for _, h := range d.handlers[u.Key] {
			targets = append(targets, h)
		}
		d.mu.Unlock()

		for _, h := range targets {
			h(u)
		}
	}
}

// close stops delivery and drops anything still queued. A handler already
// running is allowed to finish, so close is safe to call from a handler.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.queue = nil
	d.mu.Unlock()

	close(d.done)
}
