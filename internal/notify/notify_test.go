package notify

import (
	"reflect"
	"testing"
)

// TestNotifier_FireOrder verifies callbacks run in registration order.
func TestNotifier_FireOrder(t *testing.T) {
	var n Notifier[int]
	var got []string

	n.Listen(func(v int) { got = append(got, "a") })
	n.Listen(func(v int) { got = append(got, "b") })
	n.Listen(func(v int) { got = append(got, "c") })

	n.Fire(1)

	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// TestNotifier_NoDeduplication verifies the same function registered twice fires twice.
func TestNotifier_NoDeduplication(t *testing.T) {
	var n Notifier[string]
	count := 0
	fn := func(string) { count++ }

	n.Listen(fn)
	n.Listen(fn)
	n.Fire("x")

	if count != 2 {
		t.Errorf("expected 2 invocations, got %d", count)
	}
	if n.Len() != 2 {
		t.Errorf("expected 2 registrations, got %d", n.Len())
	}
}

// TestNotifier_Payload verifies the fired value reaches the callback.
func TestNotifier_Payload(t *testing.T) {
	var n Notifier[int]
	var got []int
	n.Listen(func(v int) { got = append(got, v) })

	n.Fire(3)
	n.Fire(7)

	if !reflect.DeepEqual(got, []int{3, 7}) {
		t.Errorf("expected [3 7], got %v", got)
	}
}

// TestNotifier_CancelSelfDuringFire verifies a callback can remove itself mid-fire.
func TestNotifier_CancelSelfDuringFire(t *testing.T) {
	var n Notifier[int]
	var order []string

	var self Subscription
	self = n.Listen(func(int) {
		order = append(order, "self")
		self.Cancel()
	})
	n.Listen(func(int) { order = append(order, "other") })

	n.Fire(1)
	n.Fire(2)

	want := []string{"self", "other", "other"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
	if self.Active() {
		t.Error("expected cancelled subscription to be inactive")
	}
}

// TestNotifier_CancelOtherDuringFire verifies a later callback removed mid-fire is skipped.
func TestNotifier_CancelOtherDuringFire(t *testing.T) {
	var n Notifier[int]
	var order []string

	var later Subscription
	n.Listen(func(int) {
		order = append(order, "first")
		later.Cancel()
	})
	later = n.Listen(func(int) { order = append(order, "later") })
	n.Listen(func(int) { order = append(order, "last") })

	n.Fire(1)

	want := []string{"first", "last"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

// TestNotifier_ListenDuringFire verifies callbacks added mid-fire start with the next round.
func TestNotifier_ListenDuringFire(t *testing.T) {
	var n Notifier[int]
	added := 0
	n.Listen(func(int) {
		if added == 0 {
			n.Listen(func(int) { added++ })
		}
		if added == 0 {
			added = -1
		}
	})

	n.Fire(1)
	if added != -1 {
		t.Fatalf("expected new callback not to run in the same round, got %d", added)
	}

	added = 1
	n.Fire(2)
	if added != 2 {
		t.Errorf("expected new callback to run in the next round, got %d", added)
	}
}

// TestNotifier_NoReentrantDelivery verifies nested Fire calls are queued.
func TestNotifier_NoReentrantDelivery(t *testing.T) {
	var n Notifier[int]
	var got []int
	depth := 0
	maxDepth := 0

	n.Listen(func(v int) {
		depth++
		if depth > maxDepth {
			maxDepth = depth
		}
		got = append(got, v)
		if v == 1 {
			n.Fire(2)
			got = append(got, -1)
		}
		depth--
	})

	n.Fire(1)

	if maxDepth != 1 {
		t.Errorf("expected no re-entrant invocation, max depth %d", maxDepth)
	}
	want := []int{1, -1, 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// TestNotifier_Clear verifies Clear detaches every callback.
func TestNotifier_Clear(t *testing.T) {
	var n Notifier[struct{}]
	count := 0
	sub := n.ListenFunc(func() { count++ })

	n.Clear()
	n.Fire(struct{}{})

	if count != 0 {
		t.Errorf("expected no invocations after Clear, got %d", count)
	}
	if n.Len() != 0 {
		t.Errorf("expected 0 registrations, got %d", n.Len())
	}
	if sub.Cancel() {
		t.Error("expected Cancel after Clear to report false")
	}
}

// TestSubscription_ZeroValue verifies a zero Subscription is inert.
func TestSubscription_ZeroValue(t *testing.T) {
	var s Subscription
	if s.Cancel() {
		t.Error("expected zero subscription Cancel to return false")
	}
	if s.Active() {
		t.Error("expected zero subscription to be inactive")
	}
}
