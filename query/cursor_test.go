package query

import "testing"

func TestCursorRoundTrip(t *testing.T) {
	tests := []string{
		"",
		"1-100",
		"1-19000000-10-68000000",
		"1-0-8453-22000000-42161-250000000",
	}
	for _, wire := range tests {
		c, err := ParseCursor(wire)
		if err != nil {
			t.Fatalf("ParseCursor(%q): %v", wire, err)
		}
		if got := c.String(); got != wire {
			t.Errorf("round trip %q: got %q", wire, got)
		}
	}
}

func TestCursorParseErrors(t *testing.T) {
	tests := []string{
		"1",
		"1-100-10",
		"x-100",
		"1-x",
		"1-100-1-200",
		"-1-100",
	}
	for _, wire := range tests {
		if _, err := ParseCursor(wire); err == nil {
			t.Errorf("ParseCursor(%q): expected error", wire)
		} else if qe, ok := err.(*Error); !ok || qe.Kind != ErrCursor {
			t.Errorf("ParseCursor(%q): expected CursorError, got %v", wire, err)
		}
	}
}

func TestCursorMerge(t *testing.T) {
	c, _ := ParseCursor("1-100-10-500")
	next := c.Merge(map[uint64]uint64{1: 150, 8453: 42})
	if got := next.String(); got != "1-150-10-500-8453-42" {
		t.Errorf("merge: got %q", got)
	}
	// a snapshot below the cursor means a reorg shrank the stored
	// history; the cursor follows it down
	next = c.Merge(map[uint64]uint64{1: 50})
	if got := next.String(); got != "1-50-10-500" {
		t.Errorf("merge after reorg: got %q", got)
	}
	if got := c.String(); got != "1-100-10-500" {
		t.Errorf("merge mutated receiver: %q", got)
	}
}
