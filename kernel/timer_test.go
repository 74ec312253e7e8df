package kernel

import "testing"

func TestSignedDelta(t *testing.T) {
	tests := []struct {
		name       string
		due, now   uint32
		width      TickWidth
		wantNonPos bool
	}{
		{"future, 8-bit", 10, 5, TickWidth8, false},
		{"past, 8-bit", 5, 10, TickWidth8, true},
		{"equal is non-positive", 5, 5, TickWidth8, true},
		{"exactly half range ahead counts as future", 128, 0, TickWidth8, false},
		{"just past half range counts as past", 129, 0, TickWidth8, true},
		{"wraps cleanly, 8-bit", 2, 254, TickWidth8, false}, // 2-254 mod 256 = 4, future
		{"future, 32-bit", 1000, 500, TickWidth32, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := signedDelta(tc.due, tc.now, tc.width) <= 0
			if got != tc.wantNonPos {
				t.Errorf("signedDelta(%d,%d,%d)<=0 = %v, want %v", tc.due, tc.now, tc.width, got, tc.wantNonPos)
			}
		})
	}
}

func TestArmAbsoluteTimerOverrun(t *testing.T) {
	k := &Kernel{cfg: Config{TickWidth: TickWidth8}}
	task := newTask(0, "t", nil, 0, 0, 8)

	k.time = 10
	task.timeDueAt = 0
	task.absTimerArmed = true // pretend this task's first arm already happened at time 0
	armAbsoluteTimer(k, task, 20) // due becomes 20, still in the future: no overrun
	if task.timeDueAt != 20 {
		t.Fatalf("timeDueAt = %d, want 20", task.timeDueAt)
	}
	if task.cntOverrun != 0 {
		t.Fatalf("cntOverrun = %d, want 0", task.cntOverrun)
	}

	// Now the deadline has already passed by the time it's (re)armed.
	k.time = 25
	armAbsoluteTimer(k, task, 0) // due stays 20, which is behind now=25
	if task.cntOverrun != 1 {
		t.Fatalf("cntOverrun = %d, want 1", task.cntOverrun)
	}
	if task.timeDueAt != 26 {
		t.Fatalf("timeDueAt after overrun = %d, want now+1=26", task.timeDueAt)
	}
}

// TestArmAbsoluteTimerSeedsFirstArmFromClock covers a task whose first
// absolute-timer wait happens after time=0: without seeding, arming would be
// relative to a stale zero-valued timeDueAt and read as an immediate overrun.
func TestArmAbsoluteTimerSeedsFirstArmFromClock(t *testing.T) {
	k := &Kernel{cfg: Config{TickWidth: TickWidth32}}
	task := newTask(0, "t", nil, 0, 0, 8)

	k.time = 100
	armAbsoluteTimer(k, task, 20)
	if task.timeDueAt != 120 {
		t.Fatalf("timeDueAt = %d, want 120 (seeded from k.time=100, not 0)", task.timeDueAt)
	}
	if task.cntOverrun != 0 {
		t.Fatalf("cntOverrun = %d, want 0 on a task's first arm", task.cntOverrun)
	}
}

func TestOverrunCounterSaturates(t *testing.T) {
	task := newTask(0, "t", nil, 0, 0, 8)
	for i := 0; i < 300; i++ {
		task.bumpOverrun()
	}
	if task.cntOverrun != 255 {
		t.Fatalf("cntOverrun = %d, want saturated at 255", task.cntOverrun)
	}
}

func TestSaturatingAdd(t *testing.T) {
	tests := []struct {
		a, b, mask, want uint32
	}{
		{10, 5, 0xFF, 15},
		{250, 10, 0xFF, 0xFF},
		{0xFFFFFFF0, 0x20, 0xFFFFFFFF, 0xFFFFFFFF},
	}
	for _, tc := range tests {
		if got := saturatingAdd(tc.a, tc.b, tc.mask); got != tc.want {
			t.Errorf("saturatingAdd(%d,%d,%#x) = %d, want %d", tc.a, tc.b, tc.mask, got, tc.want)
		}
	}
}

func TestDelayTimeoutSaturatesNotWraps(t *testing.T) {
	// spec.md §9 Open Questions: this implementation saturates cnt_delay
	// rather than wrapping it to zero on overflow.
	// A MAX_TICKS timeout plus WaitForEvent's +1 overflows 32 bits.
	got := saturatingAdd(0xFFFFFFFF, 1, 0xFFFFFFFF)
	if got == 0 {
		t.Fatalf("cnt_delay wrapped to zero on overflow, want saturation")
	}
	if got != 0xFFFFFFFF {
		t.Fatalf("cnt_delay = %#x, want saturated at mask", got)
	}
}
