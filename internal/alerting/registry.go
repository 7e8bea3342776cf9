package alerting

import "sync"

// Handle is a live outbound channel to exactly one real-time client.
//
// Deliver must not block: implementations enqueue the payload and perform the
// actual network write on their own write loop with its own deadline. A
// non-nil error means the client is gone or hopelessly backed up and should
// be dropped from the registry.
type Handle interface {
	Deliver(payload []byte) error
}

// Registry tracks which handles are subscribed to which cameras. It is the
// single piece of state shared between the gateway and the broadcaster, so
// every operation is safe for concurrent use.
//
// A Registry is lifecycle-scoped: construct one per server, not a package
// global, so tests can run independent instances.
type Registry struct {
	mu   sync.RWMutex
	subs map[CameraID]map[Handle]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[CameraID]map[Handle]struct{})}
}

// Subscribe adds handle to the subscriber set for cameraID, creating the set
// if absent. Subscribing an already-subscribed handle is a no-op.
func (r *Registry) Subscribe(cameraID CameraID, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[cameraID]
	if !ok {
		set = make(map[Handle]struct{})
		r.subs[cameraID] = set
	}
	set[h] = struct{}{}
}

// Unsubscribe removes handle from every camera's subscriber set it belongs
// to. It is called unconditionally on connection teardown and never depends
// on the client having sent an explicit unsubscribe.
func (r *Registry) Unsubscribe(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for cameraID, set := range r.subs {
		delete(set, h)
		if len(set) == 0 {
			delete(r.subs, cameraID)
		}
	}
}

// SubscribersOf returns a snapshot of the handles subscribed to cameraID,
// unioned with the wildcard subscribers. The snapshot is not affected by
// concurrent subscribe/unsubscribe calls. An unknown cameraID behaves as an
// empty set. A handle subscribed to both the camera and the wildcard appears
// once.
func (r *Registry) SubscribersOf(cameraID CameraID) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Handle]struct{}, len(r.subs[cameraID])+len(r.subs[WildcardCamera]))
	for h := range r.subs[cameraID] {
		seen[h] = struct{}{}
	}
	if cameraID != WildcardCamera {
		for h := range r.subs[WildcardCamera] {
			seen[h] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	out := make([]Handle, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	return out
}

// SubscriberCount returns the number of distinct subscribed handles across
// all cameras. Used for metrics.
func (r *Registry) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Handle]struct{})
	for _, set := range r.subs {
		for h := range set {
			seen[h] = struct{}{}
		}
	}
	return len(seen)
}
