package mqtt

import "testing"

func msg(target string) Message {
	return Message{Type: TypeInvocation, Target: target}
}

func targets(ms []Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Target
	}
	return out
}

func TestOutboxEmptyDrain(t *testing.T) {
	o := newOutbox(4)
	if got := o.drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestOutboxKeepsOrder(t *testing.T) {
	o := newOutbox(4)
	for _, s := range []string{"a", "b", "c"} {
		if o.push(msg(s)) {
			t.Errorf("push %s: unexpected drop", s)
		}
	}
	if o.len() != 3 {
		t.Errorf("len: got %d, want 3", o.len())
	}

	got := targets(o.drain())
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: got %s, want %s", i, got[i], want[i])
		}
	}
	if o.len() != 0 || o.drain() != nil {
		t.Error("outbox should be empty after drain")
	}
}

func TestOutboxOverflowDropsOldest(t *testing.T) {
	o := newOutbox(3)
	drops := 0
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		if o.push(msg(s)) {
			drops++
		}
	}
	if drops != 1 {
		t.Errorf("first-drop reports: got %d, want 1", drops)
	}

	got := targets(o.drain())
	want := []string{"c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestOutboxDropReportResetsAfterDrain(t *testing.T) {
	o := newOutbox(1)
	o.push(msg("a"))
	if !o.push(msg("b")) {
		t.Error("expected first drop to be reported")
	}
	o.drain()
	o.push(msg("c"))
	if !o.push(msg("d")) {
		t.Error("expected drop to be reported again after drain")
	}
}

func TestOutboxMultipleCycles(t *testing.T) {
	o := newOutbox(2)
	for cycle := 0; cycle < 3; cycle++ {
		o.push(msg("x"))
		o.push(msg("y"))
		o.push(msg("z"))
		got := targets(o.drain())
		if len(got) != 2 || got[0] != "y" || got[1] != "z" {
			t.Errorf("cycle %d: got %v, want [y z]", cycle, got)
		}
	}
}
