package wallpaper

import "sync"

// Resolver is the change hub for the wallpaper resource. Observers registered
// here are called synchronously by NotifyChange.
type Resolver struct {
	mu        sync.Mutex
	next      int
	observers map[int]func()
}

func NewResolver() *Resolver {
	return &Resolver{observers: make(map[int]func())}
}

// RegisterObserver adds fn and returns a func that removes it. The returned
// func is idempotent.
func (r *Resolver) RegisterObserver(fn func()) (unregister func()) {
	r.mu.Lock()
	id := r.next
	r.next++
	r.observers[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.observers, id)
			r.mu.Unlock()
		})
	}
}

// NotifyChange calls every registered observer. It is a no-op when nothing
// observes the resource.
func (r *Resolver) NotifyChange() {
	r.mu.Lock()
	fns := make([]func(), 0, len(r.observers))
	for _, fn := range r.observers {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	// Called outside the lock so observers may unregister themselves.
	for _, fn := range fns {
		fn()
	}
}

func (r *Resolver) Observers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observers)
}
