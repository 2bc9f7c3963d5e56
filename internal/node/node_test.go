package node

import "testing"

func TestSetMaxAndOthers(t *testing.T) {
	set := Set{
		1: Info{ID: 1, Address: "localhost:1"},
		5: Info{ID: 5, Address: "localhost:5"},
		3: Info{ID: 3, Address: "localhost:3"},
	}
	if got := set.Max(); got != 5 {
		t.Fatalf("Max() = %d, want 5", got)
	}
	others := set.Others(5)
	if len(others) != 2 {
		t.Fatalf("Others(5) = %v, want 2 entries", others)
	}
	for _, id := range others {
		if id == 5 {
			t.Fatalf("Others(5) must not include 5")
		}
	}
}

func TestIDs(t *testing.T) {
	set := Set{1: Info{ID: 1}, 2: Info{ID: 2}}
	ids := set.IDs()
	if len(ids) != 2 {
		t.Fatalf("IDs() = %v, want 2 entries", ids)
	}
}
