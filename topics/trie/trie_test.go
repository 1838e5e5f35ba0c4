package trie

import "testing"

func hasSubscriber(subs []Subscriber, client string) bool {
	for _, s := range subs {
		if s.ClientID == client {
			return true
		}
	}
	return false
}

func TestSubscribeAndMatchExact(t *testing.T) {
	x := New()
	x.Subscribe("a/b/c", "client1", 1)

	subs := x.Subscribers("a/b/c")
	if !hasSubscriber(subs, "client1") {
		t.Fatal("expected client1 to match its own exact subscription")
	}
}

func TestSubscribeSingleLevelWildcard(t *testing.T) {
	x := New()
	x.Subscribe("a/+/c", "client1", 0)

	if !hasSubscriber(x.Subscribers("a/x/c"), "client1") {
		t.Error("expected + to match a single level")
	}
	if hasSubscriber(x.Subscribers("a/x/y/c"), "client1") {
		t.Error("+ must not match multiple levels")
	}
}

func TestSubscribeMultiLevelWildcard(t *testing.T) {
	x := New()
	x.Subscribe("a/#", "client1", 0)

	if !hasSubscriber(x.Subscribers("a/b/c/d"), "client1") {
		t.Error("expected # to match every level beneath it")
	}
	if !hasSubscriber(x.Subscribers("a"), "client1") {
		t.Error("expected a/# to also match the parent topic a")
	}
}

func TestSubscribersExcludesSystemTopicFromWildcard(t *testing.T) {
	x := New()
	x.Subscribe("#", "client1", 0)
	x.Subscribe("$SYS/#", "client2", 0)

	subs := x.Subscribers("$SYS/broker/clients")
	if hasSubscriber(subs, "client1") {
		t.Error("a bare # subscription must not receive $SYS publishes")
	}
	if !hasSubscriber(subs, "client2") {
		t.Error("a $SYS-rooted subscription should still receive $SYS publishes")
	}
}

func TestUnsubscribePrunesEmptyBranches(t *testing.T) {
	x := New()
	x.Subscribe("a/b/c", "client1", 0)

	if !x.Unsubscribe("a/b/c", "client1") {
		t.Fatal("expected unsubscribe to report an existing subscription")
	}
	if len(x.Subscribers("a/b/c")) != 0 {
		t.Error("expected no subscribers after unsubscribe")
	}
	if len(x.root.children) != 0 {
		t.Error("expected the now-empty branch to be pruned")
	}
}

func TestUnsubscribeAllRemovesEveryFilter(t *testing.T) {
	x := New()
	x.Subscribe("a/b", "client1", 0)
	x.Subscribe("c/d", "client1", 1)
	x.Subscribe("c/d", "client2", 1)

	x.UnsubscribeAll("client1")

	if len(x.Subscribers("a/b")) != 0 {
		t.Error("client1 should no longer match a/b")
	}
	if !hasSubscriber(x.Subscribers("c/d"), "client2") {
		t.Error("client2's subscription to c/d should survive client1's removal")
	}
}

func TestMultipleSubscribersOnSameFilter(t *testing.T) {
	x := New()
	x.Subscribe("a/b", "client1", 0)
	x.Subscribe("a/b", "client2", 2)

	subs := x.Subscribers("a/b")
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscribers, got %d", len(subs))
	}
}
