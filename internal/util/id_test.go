package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	id := NewID("req")
	if !strings.HasPrefix(id, "req_") {
		t.Fatalf("NewID() = %q, want req_ prefix", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "req_")); err != nil {
		t.Fatalf("NewID() suffix is not a UUID: %v", err)
	}
	if NewID("") == NewID("") {
		t.Fatal("expected unique ids")
	}
}
