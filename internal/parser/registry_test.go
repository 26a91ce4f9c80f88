package parser

import "testing"

func TestParseGoFileProducesUndegradedTree(t *testing.T) {
	r := NewRegistry()
	res := r.Parse("main.go", []byte("package main\n\nfunc main() {}\n"))
	defer res.Close()

	if !res.Supported {
		t.Fatalf("expected go to be a supported language")
	}
	if res.Degraded {
		t.Fatalf("expected well-formed go source to parse without degradation, err=%v", res.Err)
	}
	if res.Tree == nil {
		t.Fatalf("expected a non-nil tree for valid go source")
	}
}

func TestParseMalformedGoStillReturnsPartialTree(t *testing.T) {
	r := NewRegistry()
	res := r.Parse("broken.go", []byte("package main\n\nfunc main( {\n"))
	defer res.Close()

	if !res.Supported {
		t.Fatalf("expected go to be a supported language")
	}
	if res.Tree == nil {
		t.Fatalf("expected a partial tree even for malformed input, never a nil tree")
	}
	if !res.Degraded {
		t.Errorf("expected malformed source to be marked degraded")
	}
	if res.Err == nil {
		t.Errorf("expected a recoverable ParseError to be attached")
	}
}

func TestParseUnsupportedLanguageIsNotAnError(t *testing.T) {
	r := NewRegistry()
	res := r.Parse("README.md", []byte("# hello\n\nnot code"))
	if res.Supported {
		t.Fatalf("markdown has no grammar wired, expected Supported = false")
	}
	if res.Err != nil {
		t.Errorf("unsupported language must not itself be an error, got %v", res.Err)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	r := NewRegistry()
	src := []byte("package main\n\nfunc add(a, b int) int { return a + b }\n")

	first := r.Parse("a.go", src)
	defer first.Close()
	second := r.Parse("a.go", src)
	defer second.Close()

	a, b := first.Tree.RootNode(), second.Tree.RootNode()
	if a.Kind() != b.Kind() || a.ChildCount() != b.ChildCount() || a.EndByte() != b.EndByte() {
		t.Errorf("expected identical bytes to produce identical trees")
	}
}
