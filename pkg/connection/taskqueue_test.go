package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskQueuePushRunsHeadOnly(t *testing.T) {
	var q TaskQueue
	var ran []string

	q.Push(TaskConnect, func() { ran = append(ran, "connect") })
	q.Push(TaskAuthenticate, func() { ran = append(ran, "auth") })

	assert.Equal(t, []string{"connect"}, ran)
	assert.Equal(t, TaskConnect, q.CurrentKind())
	assert.Equal(t, TaskAuthenticate, q.NextKind())
	assert.Equal(t, 2, q.Len())

	q.Pop()
	assert.Equal(t, []string{"connect", "auth"}, ran)
	assert.Equal(t, TaskAuthenticate, q.CurrentKind())
	assert.Equal(t, TaskNone, q.NextKind())

	q.Pop()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, TaskNone, q.CurrentKind())

	// Popping an empty queue is harmless.
	q.Pop()
}

func TestTaskQueueSynchronousPop(t *testing.T) {
	var q TaskQueue
	var ran []TaskKind

	// Tasks that finish immediately pop themselves from inside Run.
	q.Push(TaskConnect, func() {
		ran = append(ran, TaskConnect)
	})
	q.Push(TaskDisconnect, func() {
		ran = append(ran, TaskDisconnect)
		q.Pop()
	})
	q.Push(TaskAuthenticate, func() {
		ran = append(ran, TaskAuthenticate)
		q.Pop()
	})

	q.Pop()

	assert.Equal(t, []TaskKind{TaskConnect, TaskDisconnect, TaskAuthenticate}, ran)
	assert.Equal(t, 0, q.Len())
}

func TestTaskQueueRemoveNext(t *testing.T) {
	var q TaskQueue

	q.Push(TaskConnect, nil)
	q.Push(TaskAutoReconnect, func() { t.Error("removed task ran") })
	q.Push(TaskDisconnect, nil)

	q.RemoveNext()
	assert.Equal(t, []TaskKind{TaskConnect, TaskDisconnect}, q.Kinds())

	q.Pop()
	q.RemoveNext()
	assert.Equal(t, []TaskKind{TaskDisconnect}, q.Kinds())

	q.Clear()
	assert.Empty(t, q.Kinds())
}

func TestTaskKindString(t *testing.T) {
	assert.Equal(t, "AUTO_RECONNECT", TaskAutoReconnect.String())
	assert.Equal(t, "AUTHENTICATE", TaskAuthenticate.String())
	assert.Equal(t, "UNKNOWN", TaskKind(42).String())
}
