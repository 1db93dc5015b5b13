package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

func TestRegistryAddGet(t *testing.T) {
	r := NewRegistry()
	d := newTestDevice(t)

	r.Add(d)
	got, ok := r.Get(d.UID())
	require.True(t, ok)
	assert.Same(t, d, got)
	assert.Equal(t, 1, r.Len())

	_, ok = r.Get(d.UID() + 1)
	assert.False(t, ok)
}

func TestRegistryCollisionMarksReplaced(t *testing.T) {
	r := NewRegistry()
	first := newTestDevice(t)
	second := newTestDevice(t)

	r.Add(first)
	r.Add(first)
	assert.False(t, first.Replaced(), "re-adding the same device must not replace it")

	r.Add(second)
	assert.True(t, first.Replaced())
	assert.False(t, second.Replaced())

	got, _ := r.Get(first.UID())
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	first := newTestDevice(t)
	second := newTestDevice(t)

	r.Add(first)
	r.Add(second)

	r.Remove(first)
	_, ok := r.Get(second.UID())
	assert.True(t, ok, "removing a replaced device must keep the current holder")

	r.Remove(second)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryAllSorted(t *testing.T) {
	r := NewRegistry()
	for _, uid := range []string{"Zz", "b", "5"} {
		d, err := New(uid, testDescriptor())
		require.NoError(t, err)
		r.Add(d)
	}

	all := r.All()
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].UID(), all[i].UID())
	}
}

func TestRegistryAllSortedAcrossHighUIDs(t *testing.T) {
	r := NewRegistry()
	for _, uid := range []uint32{1, 0xFFFFFFF0, 3} {
		d, err := New(wire.Base58Encode(uid), testDescriptor())
		require.NoError(t, err)
		r.Add(d)
	}

	var uids []uint32
	for _, d := range r.All() {
		uids = append(uids, d.UID())
	}
	assert.Equal(t, []uint32{1, 3, 0xFFFFFFF0}, uids)
}
