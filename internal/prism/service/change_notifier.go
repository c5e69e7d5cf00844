package service

import (
	"context"
	"iter"
	"sync"
)

// Observable is the resolver-side hook the notifier attaches to.
type Observable interface {
	RegisterObserver(fn func()) (unregister func())
}

// ChangeNotifier fans resolver change signals out to subscribers. It holds a
// resolver observer only while at least one subscriber is attached.
type ChangeNotifier struct {
	source Observable

	mu         sync.Mutex
	subs       map[*Subscription]struct{}
	unregister func()
}

func NewChangeNotifier(source Observable) *ChangeNotifier {
	return &ChangeNotifier{
		source: source,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscription receives at most one pending signal; bursts collapse into it.
type Subscription struct {
	n    *ChangeNotifier
	c    chan struct{}
	once sync.Once

	mu   sync.Mutex
	stop func() bool
}

func (s *Subscription) C() <-chan struct{} { return s.c }

// Close detaches the subscription. When it was the last one the resolver
// observer is gone by the time Close returns.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.n.remove(s)
	})
}

// Subscribe attaches a subscriber that is closed automatically when ctx is done.
func (n *ChangeNotifier) Subscribe(ctx context.Context) *Subscription {
	s := &Subscription{n: n, c: make(chan struct{}, 1)}

	n.mu.Lock()
	if len(n.subs) == 0 {
		n.unregister = n.source.RegisterObserver(n.broadcast)
	}
	n.subs[s] = struct{}{}
	n.mu.Unlock()

	s.mu.Lock()
	s.stop = context.AfterFunc(ctx, s.Close)
	s.mu.Unlock()
	return s
}

// Subscribed reports whether the notifier currently observes the resolver.
func (n *ChangeNotifier) Subscribed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unregister != nil
}

// Changes is a restartable sequence of change events, one per conflated
// burst. It ends when ctx is done or the consumer stops.
func (n *ChangeNotifier) Changes(ctx context.Context) iter.Seq[struct{}] {
	return func(yield func(struct{}) bool) {
		sub := n.Subscribe(ctx)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok || !yield(struct{}{}) {
					return
				}
			}
		}
	}
}

func (n *ChangeNotifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for s := range n.subs {
		select {
		case s.c <- struct{}{}:
		default:
		}
	}
}

func (n *ChangeNotifier) remove(s *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[s]; !ok {
		return
	}
	delete(n.subs, s)
	close(s.c)
	if len(n.subs) == 0 && n.unregister != nil {
		n.unregister()
		n.unregister = nil
	}
}
