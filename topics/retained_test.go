package topics

import "testing"

func TestRetainedStoreSetAndMatch(t *testing.T) {
	s := NewRetainedStore()

	changed := s.Set("a/b", []byte("hello"), 1)
	if !changed {
		t.Fatal("expected setting a new retained message to report a change")
	}

	matched := s.Match("a/+")
	if len(matched) != 1 || matched[0].Topic != "a/b" {
		t.Fatalf("expected one match on a/b, got %+v", matched)
	}
}

func TestRetainedStoreClearOnEmptyPayload(t *testing.T) {
	s := NewRetainedStore()
	s.Set("a/b", []byte("hello"), 0)

	changed := s.Set("a/b", nil, 0)
	if !changed {
		t.Fatal("expected clearing an existing retained message to report a change")
	}
	if s.Len() != 0 {
		t.Fatal("expected retained store to be empty after clearing")
	}
}

func TestRetainedStoreQoSAboveZeroAppends(t *testing.T) {
	s := NewRetainedStore()
	s.Set("a/b", []byte("one"), 1)
	s.Set("a/b", []byte("two"), 2)

	matched := s.Match("a/b")
	if len(matched) != 2 {
		t.Fatalf("expected both QoS>0 retained messages to coexist, got %+v", matched)
	}
}

func TestRetainedStoreQoSZeroReplaces(t *testing.T) {
	s := NewRetainedStore()
	s.Set("a/b", []byte("one"), 1)
	s.Set("a/b", []byte("two"), 2)
	s.Set("a/b", []byte("three"), 0)

	matched := s.Match("a/b")
	if len(matched) != 1 || string(matched[0].Payload) != "three" {
		t.Fatalf("expected QoS0 publish to replace prior retained messages, got %+v", matched)
	}
}

func TestRetainedStoreClearOnEmptyPayloadNoop(t *testing.T) {
	s := NewRetainedStore()
	changed := s.Set("a/b", nil, 0)
	if changed {
		t.Fatal("clearing a topic with no retained message should report no change")
	}
}
