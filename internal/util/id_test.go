package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("run")
	if !strings.HasPrefix(id, "run_") {
		t.Fatalf("expected run_ prefix, got %q", id)
	}
	if len(id) != len("run_")+32 {
		t.Fatalf("unexpected id length %d for %q", len(id), id)
	}
	if strings.Contains(strings.TrimPrefix(id, "run_"), "-") {
		t.Fatalf("id should not contain dashes: %q", id)
	}

	if bare := NewID(""); len(bare) != 32 {
		t.Fatalf("unexpected bare id %q", bare)
	}
	if NewID("run") == NewID("run") {
		t.Fatal("ids should be unique")
	}
}
