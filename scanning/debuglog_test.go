package scanning

import (
	"fmt"
	"testing"
)

func TestDebugLogKeepsInsertionOrder(t *testing.T) {
	d := NewDebugLog(8)
	d.Record("first")
	d.Record("second")
	d.Record("third")

	entries := d.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "first" || entries[2].Message != "third" {
		t.Fatalf("unexpected order: %v", entries)
	}
}

func TestDebugLogWrapsAround(t *testing.T) {
	d := NewDebugLog(4)
	for i := 0; i < 10; i++ {
		d.Record("entry %d", i)
	}

	if d.Len() != 4 {
		t.Fatalf("expected capacity-bound length 4, got %d", d.Len())
	}
	entries := d.Entries()
	for i, entry := range entries {
		want := fmt.Sprintf("entry %d", 6+i)
		if entry.Message != want {
			t.Fatalf("entry %d: expected %q, got %q", i, want, entry.Message)
		}
	}
}

func TestDebugLogActsAsWriter(t *testing.T) {
	d := NewDebugLog(4)
	n, err := d.Write([]byte("log line\n"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != len("log line\n") {
		t.Fatalf("expected full write, got %d", n)
	}
	entries := d.Entries()
	if len(entries) != 1 || entries[0].Message != "log line" {
		t.Fatalf("unexpected entries: %v", entries)
	}
}
