package capture

import "sync"

// devices tracks which session holds each input device in this process.
var devices = &deviceRegistry{held: make(map[string]string)}

type deviceRegistry struct {
	mu   sync.Mutex
	held map[string]string
}

func (r *deviceRegistry) acquire(device, owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if holder, ok := r.held[device]; ok && holder != owner {
		return false
	}
	r.held[device] = owner
	return true
}

func (r *deviceRegistry) release(device, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held[device] == owner {
		delete(r.held, device)
	}
}
