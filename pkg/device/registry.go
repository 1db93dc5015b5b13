package device

import (
	"cmp"
	"slices"
	"sync"
)

// Registry maps UIDs to devices.
type Registry struct {
	mu      sync.RWMutex
	devices map[uint32]*Device
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[uint32]*Device)}
}

// Add registers d under its UID. A different device already holding the
// UID is marked replaced.
func (r *Registry) Add(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.devices[d.UID()]; ok && prev != d {
		prev.MarkReplaced()
	}
	r.devices[d.UID()] = d
}

// Remove unregisters d if it still holds its UID.
func (r *Registry) Remove(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.devices[d.UID()]; ok && cur == d {
		delete(r.devices, d.UID())
	}
}

// Get returns the device registered under uid.
func (r *Registry) Get(uid uint32) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[uid]
	return d, ok
}

// All returns the registered devices ordered by UID.
func (r *Registry) All() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *Device) int {
		return cmp.Compare(a.UID(), b.UID())
	})
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
