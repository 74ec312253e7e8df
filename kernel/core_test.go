package kernel

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// newTestKernel builds a Kernel without going through NewKernel's channel
// plumbing, for tests that drive checkForTaskActivation directly and never
// launch a goroutine.
func newTestKernel(classes int) *Kernel {
	return &Kernel{
		cfg:   Config{PriorityClasses: classes, TickWidth: TickWidth32},
		ready: make([]readyQueue, classes),
	}
}

// TestCheckForTaskActivationWaitForAll is spec.md §8 scenario 4: a task
// waiting on EVT_A|EVT_B with wait_for_all is released only once both
// non-timer bits are posted, not by either alone.
func TestCheckForTaskActivationWaitForAll(t *testing.T) {
	k := newTestKernel(1)
	worker := newTask(0, "worker", nil, 0, 0, 8)
	worker.state = stateSuspended
	worker.eventMask = evtTestA | evtTestB
	worker.waitForAny = false
	k.suspended.add(worker)
	k.idle = newTask(1, "idle", nil, -1, 0, 0)
	k.idle.isIdle = true
	k.active = k.idle

	worker.postedEventVec = evtTestA
	if got := k.checkForTaskActivation(false); got != k.idle {
		t.Fatalf("released on partial mask, want still waiting (active=idle), got %v", got)
	}
	if k.suspended.len() != 1 {
		t.Fatalf("worker released early: suspended.len() = %d, want 1", k.suspended.len())
	}

	worker.postedEventVec |= evtTestB
	got := k.checkForTaskActivation(false)
	if got != worker {
		t.Fatalf("worker not released once both bits posted, active = %v", got)
	}
	if k.suspended.len() != 0 {
		t.Fatalf("suspended.len() = %d, want 0 after release", k.suspended.len())
	}
	if worker.eventMask != 0 {
		t.Fatalf("eventMask = %#x after release, want 0", worker.eventMask)
	}
	// posted_event_vec must survive the release untouched — only the
	// context-switch primitive (wake) clears it, per spec.md §4.2/§4.7.
	if worker.postedEventVec != evtTestA|evtTestB {
		t.Fatalf("postedEventVec = %#x after release, want unchanged", worker.postedEventVec)
	}
}

// TestCheckForTaskActivationAnyTimerReleasesAllNonTimer covers the timer
// half of spec.md §4.2's release test: with a timer bit in the mask, the
// timer firing alone releases a wait-for-all task even though its
// non-timer bit (evtTestA) was never posted.
func TestCheckForTaskActivationAnyTimerReleasesAllNonTimer(t *testing.T) {
	k := newTestKernel(1)
	worker := newTask(0, "worker", nil, 0, 0, 8)
	worker.state = stateSuspended
	worker.eventMask = evtTestA | EvtDelayTimer
	worker.waitForAny = false
	k.suspended.add(worker)
	k.idle = newTask(1, "idle", nil, -1, 0, 0)
	k.idle.isIdle = true
	k.active = k.idle

	worker.postedEventVec = EvtDelayTimer
	if got := k.checkForTaskActivation(false); got != worker {
		t.Fatalf("timer bit alone did not release waitForAll task with a timer bit set, got %v", got)
	}
}

// TestCheckForTaskActivationWaitForAny confirms a single posted bit out of
// several in the mask releases a wait_for_any task.
func TestCheckForTaskActivationWaitForAny(t *testing.T) {
	k := newTestKernel(1)
	worker := newTask(0, "worker", nil, 0, 0, 8)
	worker.state = stateSuspended
	worker.eventMask = evtTestA | evtTestB
	worker.waitForAny = true
	k.suspended.add(worker)
	k.idle = newTask(1, "idle", nil, -1, 0, 0)
	k.idle.isIdle = true
	k.active = k.idle

	worker.postedEventVec = evtTestB
	if got := k.checkForTaskActivation(false); got != worker {
		t.Fatalf("wait_for_any not released by a single posted bit, got %v", got)
	}
}

func TestStackReserveTracksUsage(t *testing.T) {
	task := newTask(0, "t", nil, 0, 0, 64)
	if got := task.stackReserve(); got != 64 {
		t.Fatalf("stackReserve() = %d, want 64 (untouched)", got)
	}
	task.MarkStackUsed(16)
	if got := task.stackReserve(); got != 48 {
		t.Fatalf("stackReserve() after MarkStackUsed(16) = %d, want 48", got)
	}
	// A shallower call afterward must not move the high-water mark backward.
	task.MarkStackUsed(4)
	if got := task.stackReserve(); got != 48 {
		t.Fatalf("stackReserve() after a shallower MarkStackUsed = %d, want still 48", got)
	}
	task.MarkStackUsed(64)
	if got := task.stackReserve(); got != 0 {
		t.Fatalf("stackReserve() after full-depth MarkStackUsed = %d, want 0", got)
	}
}

// TestReadyAndSuspendedCountInvariant checks spec.md §8's
// suspended_count + Σ ready_count == N invariant across a release.
func TestReadyAndSuspendedCountInvariant(t *testing.T) {
	k := newTestKernel(2)
	tasks := []*Task{
		newTask(0, "a", nil, 0, 0, 8),
		newTask(1, "b", nil, 1, 0, 8),
		newTask(2, "c", nil, 0, 0, 8),
	}
	k.idle = newTask(3, "idle", nil, -1, 0, 0)
	k.idle.isIdle = true
	k.active = k.idle

	k.ready[0].pushBack(tasks[0])
	k.ready[1].pushBack(tasks[1])
	tasks[2].state = stateSuspended
	tasks[2].eventMask = evtTestA
	tasks[2].waitForAny = true
	k.suspended.add(tasks[2])

	total := func() int {
		n := k.suspended.len()
		for i := range k.ready {
			n += k.ready[i].len()
		}
		return n
	}
	if total() != len(tasks) {
		t.Fatalf("total scheduled tasks = %d, want %d", total(), len(tasks))
	}

	tasks[2].postedEventVec = evtTestA
	k.checkForTaskActivation(false)
	if total() != len(tasks) {
		t.Fatalf("total scheduled tasks after release = %d, want %d", total(), len(tasks))
	}
	if k.suspended.len() != 0 {
		t.Fatalf("suspended.len() after release = %d, want 0", k.suspended.len())
	}
}

func TestSnapshotReflectsState(t *testing.T) {
	k := newTestKernel(1)
	a := newTask(0, "a", nil, 0, 0, 8)
	b := newTask(1, "b", nil, 0, 0, 8)
	k.idle = newTask(2, "idle", nil, -1, 0, 0)
	k.idle.isIdle = true
	k.tasks = []*Task{a, b}
	k.ready[0].pushBack(a)
	b.state = stateSuspended
	b.eventMask = evtTestA
	k.suspended.add(b)
	k.active = a
	k.time = 42

	got := k.Snapshot()
	want := Snapshot{Time: 42, Active: "a", ReadyLen: []int{1}, Suspended: []string{"b"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Snapshot() mismatch (-want +got):\n%s", diff)
	}
}
