package multiset

import (
	"testing"
)

func TestMultisetOrderIndependence(t *testing.T) {
	elements := [][]byte{[]byte("a"), []byte("b"), []byte("c")}

	forward := New()
	for _, element := range elements {
		forward.Add(element)
	}
	backward := New()
	for i := len(elements) - 1; i >= 0; i-- {
		backward.Add(elements[i])
	}
	if forward.Hash() != backward.Hash() {
		t.Fatalf("multiset hash depends on insertion order")
	}

	empty := New().Hash()
	if forward.Hash() == empty {
		t.Fatalf("a non-empty multiset hashes like the empty one")
	}
	for _, element := range elements {
		forward.Remove(element)
	}
	if forward.Hash() != empty {
		t.Fatalf("removing every element should restore the empty hash")
	}
}

func TestMultisetSerialization(t *testing.T) {
	ms := New()
	ms.Add([]byte("coin"))

	restored, err := FromBytes(ms.Serialize())
	if err != nil {
		t.Fatalf("FromBytes: %s", err)
	}
	if restored.Hash() != ms.Hash() {
		t.Fatalf("restored multiset hashes differently")
	}

	clone := ms.Clone()
	clone.Add([]byte("other"))
	if clone.Hash() == ms.Hash() {
		t.Fatalf("modifying a clone changed the original")
	}

	if _, err := FromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected an error for a short serialization")
	}
}
