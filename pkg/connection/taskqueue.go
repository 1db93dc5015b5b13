package connection

// TaskKind identifies a lifecycle task.
type TaskKind uint8

const (
	// TaskNone is reported for an empty slot.
	TaskNone TaskKind = iota

	// TaskConnect opens the socket on request.
	TaskConnect

	// TaskDisconnect closes the socket on request.
	TaskDisconnect

	// TaskAutoReconnect reopens the socket after an unexpected close.
	TaskAutoReconnect

	// TaskAuthenticate runs the authentication handshake.
	TaskAuthenticate
)

// String returns the task kind name.
func (k TaskKind) String() string {
	switch k {
	case TaskNone:
		return "NONE"
	case TaskConnect:
		return "CONNECT"
	case TaskDisconnect:
		return "DISCONNECT"
	case TaskAutoReconnect:
		return "AUTO_RECONNECT"
	case TaskAuthenticate:
		return "AUTHENTICATE"
	default:
		return "UNKNOWN"
	}
}

// Task is one queued lifecycle operation. Run starts it; the task calls
// TaskQueue.Pop when it has finished.
type Task struct {
	Kind TaskKind
	Run  func()
}

// TaskQueue runs lifecycle tasks one at a time in FIFO order.
//
// The head of the queue is the running task. TaskQueue is not safe for
// concurrent use; the owner serialises access (the ipcon event loop).
type TaskQueue struct {
	tasks []Task
}

// Push appends a task and starts it if the queue was empty.
func (q *TaskQueue) Push(kind TaskKind, run func()) {
	q.tasks = append(q.tasks, Task{Kind: kind, Run: run})
	if len(q.tasks) == 1 {
		q.runHead()
	}
}

// Pop removes the finished head task and starts the next one.
func (q *TaskQueue) Pop() {
	if len(q.tasks) == 0 {
		return
	}
	q.tasks[0] = Task{}
	q.tasks = q.tasks[1:]
	if len(q.tasks) > 0 {
		q.runHead()
	}
}

// RemoveNext drops the task queued directly behind the head, if any.
func (q *TaskQueue) RemoveNext() {
	if len(q.tasks) < 2 {
		return
	}
	q.tasks = append(q.tasks[:1], q.tasks[2:]...)
}

// CurrentKind returns the kind of the running task or TaskNone.
func (q *TaskQueue) CurrentKind() TaskKind {
	if len(q.tasks) == 0 {
		return TaskNone
	}
	return q.tasks[0].Kind
}

// NextKind returns the kind of the task behind the head or TaskNone.
func (q *TaskQueue) NextKind() TaskKind {
	if len(q.tasks) < 2 {
		return TaskNone
	}
	return q.tasks[1].Kind
}

// Len returns the number of queued tasks including the running one.
func (q *TaskQueue) Len() int {
	return len(q.tasks)
}

// Kinds returns a snapshot of the queued task kinds, head first.
func (q *TaskQueue) Kinds() []TaskKind {
	kinds := make([]TaskKind, len(q.tasks))
	for i, t := range q.tasks {
		kinds[i] = t.Kind
	}
	return kinds
}

// Clear drops all tasks without running them.
func (q *TaskQueue) Clear() {
	q.tasks = nil
}

func (q *TaskQueue) runHead() {
	if run := q.tasks[0].Run; run != nil {
		run()
	}
}
