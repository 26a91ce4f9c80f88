package types

import "testing"

func TestChangeSetAllChanged(t *testing.T) {
	cs := NewChangeSet()
	cs.Added["a.go"] = true
	cs.Modified["b.go"] = true
	cs.MarkAsRenamed("old.go", "new.go")

	all := cs.AllChanged()
	for _, want := range []string{"a.go", "b.go", "new.go"} {
		if !all[want] {
			t.Errorf("expected %q in AllChanged(), got %v", want, all)
		}
	}
	if all["old.go"] {
		t.Errorf("old.go should not appear in AllChanged()")
	}
	if len(cs.Deleted) != 0 || len(cs.Added) != 1 {
		t.Errorf("MarkAsRenamed should not leave old in Deleted or new in Added: %+v", cs)
	}
}

func TestDependencyGraphBFSImpacted(t *testing.T) {
	g := NewDependencyGraph()
	// c depends on b, b depends on a: a -> b -> c
	g.AddEdge("b", "a")
	g.AddEdge("c", "b")

	impacted := g.BFSImpacted([]string{"a"})
	for _, want := range []string{"a", "b", "c"} {
		if !impacted[want] {
			t.Errorf("expected %q impacted by change to a, got %v", want, impacted)
		}
	}
}

func TestEscapeJoinLattice(t *testing.T) {
	cases := []struct {
		a, b, want EscapeState
	}{
		{NoEscape, ArgEscape, ArgEscape},
		{ArgEscape, NoEscape, ArgEscape},
		{ReturnEscape, FieldEscape, FieldEscape},
		{FieldEscape, ArrayEscape, GlobalEscape},
		{GlobalEscape, NoEscape, GlobalEscape},
		{UnknownEscape, GlobalEscape, UnknownEscape},
	}
	for _, c := range cases {
		got := JoinEscape(c.a, c.b)
		if got != c.want {
			t.Errorf("JoinEscape(%s, %s) = %s, want %s", c.a, c.b, got, c.want)
		}
	}
}

func TestEscapePredicates(t *testing.T) {
	if ReturnEscape.IsThreadLocal() {
		t.Errorf("ReturnEscape must not be thread-local")
	}
	if ReturnEscape.IsHeapEscape() {
		t.Errorf("ReturnEscape must not be a heap escape (only >= FieldEscape is)")
	}
	if !FieldEscape.IsHeapEscape() {
		t.Errorf("FieldEscape must be a heap escape")
	}
	if !ArgEscape.IsThreadLocal() {
		t.Errorf("ArgEscape must be thread-local")
	}
}

func TestSpanContains(t *testing.T) {
	outer := Span{File: "a.go", StartLine: 1, StartCol: 0, EndLine: 10, EndCol: 0}
	inner := Span{File: "a.go", StartLine: 2, StartCol: 0, EndLine: 5, EndCol: 3}
	other := Span{File: "b.go", StartLine: 2, StartCol: 0, EndLine: 5, EndCol: 3}

	if !outer.Contains(inner) {
		t.Errorf("expected outer to contain inner")
	}
	if outer.Contains(other) {
		t.Errorf("spans in different files must never contain each other")
	}
}
