package ordered

import "testing"

func TestMap_InsertionOrder(t *testing.T) {
	m := NewMap[int]()
	m.Set("b", 1)
	m.Set("a", 2)
	m.Set("c", 3)
	m.Set("a", 4) // overwrite keeps position

	want := []string{"b", "a", "c"}
	got := m.Keys()
	if len(got) != len(want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys = %v, want %v", got, want)
		}
	}
	if v, ok := m.Get("a"); !ok || v != 4 {
		t.Fatalf("Get(a) = %v %v", v, ok)
	}
}

func TestMap_DeleteKeepsOrder(t *testing.T) {
	m := NewMap[string]()
	m.Set("x", "1")
	m.Set("y", "2")
	m.Set("z", "3")
	m.Delete("y")
	if m.Len() != 2 {
		t.Fatalf("len = %d", m.Len())
	}
	keys := m.Keys()
	if keys[0] != "x" || keys[1] != "z" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestMap_CloneIsIndependent(t *testing.T) {
	m := NewMap[int]()
	m.Set("a", 1)
	c := m.Clone()
	c.Set("b", 2)
	if m.Len() != 1 || c.Len() != 2 {
		t.Fatalf("clone leaked into source: %d %d", m.Len(), c.Len())
	}
}
