package fileid

import (
	"strings"
	"testing"
)

func TestSourceID(t *testing.T) {
	id := SourceID("/inbox/화면설계서.pdf")
	if !strings.HasPrefix(id, prefix) {
		t.Errorf("SourceID should have prefix %q: got %q", prefix, id)
	}
	if SourceID("/inbox/화면설계서.pdf") != id {
		t.Error("same path should give same ID")
	}
	if SourceID("/inbox/api.xlsx") == id {
		t.Error("different paths should give different IDs")
	}
}

func TestSourceID_normalized(t *testing.T) {
	want := SourceID("/inbox/a.pdf")
	for _, p := range []string{"/inbox/./a.pdf", "/inbox//a.pdf", "/inbox/sub/../a.pdf"} {
		if got := SourceID(p); got != want {
			t.Errorf("SourceID(%q) = %q, want %q", p, got, want)
		}
	}
}
