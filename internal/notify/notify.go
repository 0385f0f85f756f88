// Package notify provides a typed multicast callback registry.
//
// A Notifier is owned by the component that fires it. Consumers register
// callbacks with Listen and receive every value passed to Fire, in
// registration order, on the goroutine that fires. Notifiers are not safe for
// concurrent use: they live on the debug context together with the objects
// that own them.
package notify

// Subscription identifies one registered callback.
type Subscription struct {
	entry *entry
	owner interface{ remove(*entry) bool }
}

// Cancel removes the callback from its notifier. It reports whether the
// callback was still registered.
func (s Subscription) Cancel() bool {
	if s.entry == nil || s.owner == nil {
		return false
	}
	return s.owner.remove(s.entry)
}

// Active reports whether the callback is still registered.
func (s Subscription) Active() bool {
	return s.entry != nil && !s.entry.cancelled
}

type entry struct {
	fn        any
	cancelled bool
}

// Notifier is a typed multicast callback list.
type Notifier[T any] struct {
	entries []*entry

	firing  bool
	pending []T
}

// Listen registers fn. Registering the same function twice results in two
// invocations per Fire.
func (n *Notifier[T]) Listen(fn func(T)) Subscription {
	e := &entry{fn: fn}
	n.entries = append(n.entries, e)
	return Subscription{entry: e, owner: n}
}

// ListenFunc registers a callback that ignores the payload.
func (n *Notifier[T]) ListenFunc(fn func()) Subscription {
	return n.Listen(func(T) { fn() })
}

func (n *Notifier[T]) remove(e *entry) bool {
	for i, cur := range n.entries {
		if cur == e {
			e.cancelled = true
			n.entries = append(n.entries[:i:i], n.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Fire invokes every registered callback with v.
//
// Callbacks run over a snapshot of the registration list; a callback
// cancelled during the round is skipped once its turn comes. A Fire issued
// from inside one of this notifier's callbacks is queued and delivered after
// the current round completes.
func (n *Notifier[T]) Fire(v T) {
	if n.firing {
		n.pending = append(n.pending, v)
		return
	}

	n.firing = true
	defer func() {
		n.firing = false
		n.pending = nil
	}()

	n.deliver(v)
	for len(n.pending) > 0 {
		next := n.pending[0]
		n.pending = n.pending[1:]
		n.deliver(next)
	}
}

func (n *Notifier[T]) deliver(v T) {
	snapshot := make([]*entry, len(n.entries))
	copy(snapshot, n.entries)

	for _, e := range snapshot {
		if e.cancelled {
			continue
		}
		e.fn.(func(T))(v)
	}
}

// Len returns the number of registered callbacks.
func (n *Notifier[T]) Len() int {
	return len(n.entries)
}

// Clear detaches every callback and drops queued deliveries.
func (n *Notifier[T]) Clear() {
	for _, e := range n.entries {
		e.cancelled = true
	}
	n.entries = nil
	n.pending = nil
}
