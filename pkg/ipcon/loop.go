package ipcon

import "sync"

// eventLoop runs posted functions one at a time on a single goroutine.
// Every piece of engine state that is not an atomic is owned by it.
type eventLoop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newEventLoop() *eventLoop {
	l := &eventLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// post schedules fn. It reports false once the loop is closed.
func (l *eventLoop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// close stops accepting work. Functions already posted still run.
func (l *eventLoop) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// stopped is closed once the loop goroutine has exited.
func (l *eventLoop) stopped() <-chan struct{} {
	return l.done
}

func (l *eventLoop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}

		if len(batch) == 0 {
			if closed {
				return
			}
			<-l.wake
		}
	}
}
