package supervisor

import "testing"

func TestMatchGlob_SingleSegment(t *testing.T) {
	if !matchGlob("*.go", "main.go") {
		t.Error("expected match")
	}
	if matchGlob("*.go", "sub/main.go") {
		t.Error("expected no match across a segment boundary")
	}
}

func TestMatchGlob_DoubleStarArbitraryDepth(t *testing.T) {
	if !matchGlob("src/**/*.go", "src/a/b/c.go") {
		t.Error("expected ** to match arbitrary depth")
	}
	if !matchGlob("src/**/*.go", "src/c.go") {
		t.Error("expected ** to match zero directories")
	}
	if matchGlob("src/**/*.go", "lib/c.go") {
		t.Error("expected no match outside src/")
	}
}

func TestMatchURITemplate_SingleSegmentPlaceholder(t *testing.T) {
	if !matchURITemplate("notes://{id}", "notes://abc123") {
		t.Error("expected match")
	}
	if matchURITemplate("notes://{id}", "notes://abc/123") {
		t.Error("expected {id} to match exactly one segment")
	}
}

func TestMatchURITemplate_MultiplePlaceholders(t *testing.T) {
	if !matchURITemplate("notes://{folder}/{id}", "notes://work/abc123") {
		t.Error("expected match across two placeholders")
	}
}

func TestMatchURITemplate_LiteralCharactersEscaped(t *testing.T) {
	if matchURITemplate("notes://{id}.json", "notes://abcXjsonextra") {
		t.Error("literal '.' should not behave as a wildcard")
	}
}
