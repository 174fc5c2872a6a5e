package conversation

import "sync"

// Registry maps user ids to live conversation handles. Handles are created
// lazily and never evicted, so the registry grows with the number of distinct
// users seen since process start. All methods are safe for concurrent use.
//
// The registry is an injected dependency of the [Manager], never package
// state, so tests can run isolated instances side by side.
type Registry struct {
	mu      sync.Mutex
	handles map[int64]*Handle
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{handles: make(map[int64]*Handle)}
}

// Get returns the handle for userID, or (nil, false) when none exists yet.
func (r *Registry) Get(userID int64) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[userID]
	return h, ok
}

// GetOrCreate returns the existing handle for userID or builds one via build.
// The registry lock is held across build; creation happens once per user per
// process lifetime and only performs two store reads, so the contention
// window is short.
//
// When build fails no handle is recorded, so the next call retries.
func (r *Registry) GetOrCreate(userID int64, build func() (*Handle, error)) (*Handle, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[userID]; ok {
		return h, false, nil
	}

	h, err := build()
	if err != nil {
		return nil, false, err
	}
	r.handles[userID] = h
	return h, true, nil
}

// Len returns the number of live handles. Feeds the active-conversations
// gauge.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
