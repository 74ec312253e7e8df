package kernel

import "fmt"

// This file is the Context Switch Primitive of spec.md §4.7, re-expressed
// for goroutines. Real hardware saves the leaving task's full register
// frame onto its own stack and restores the entering task's frame from
// its own stack, distinguishing "merely preempted" (case A, full context
// on the stack) from "resumed after a suspending system call" (case B,
// the return-value register pair missing from the saved frame and
// synthesized from posted_event_vec) without a per-task flag.
//
// Here, every parked task is a goroutine blocked on its own turnCh. The
// distinction survives unchanged: wake inspects the incoming task's
// posted_event_vec exactly as spec.md's restore primitive would, delivers
// it as the channel value on case B, and clears it — still the only place
// that clears it, as spec.md §4.2 and §9 require.

// wake arranges for t to run next: starting its goroutine on first
// activation, or sending it the baton otherwise. It must be called
// without k.mu held, since the receiving side may itself need to take
// the lock immediately upon waking (e.g. to call SetEvent or
// WaitForEvent again).
//
// A task marked preempted keeps running until it next calls Checkpoint,
// WaitForEvent, or SetEvent (the cooperative gap documented on Checkpoint);
// the scheduler core can pick it as active again before it ever reaches one
// of those and actually parks on turnCh. Sending the baton in that case
// would block this goroutine forever, since nothing is guaranteed to ever
// receive — t is busy running, not waiting. t.parked, set only while a
// goroutine is truly blocked inside a turnCh receive (see parkSelf and
// Checkpoint), is what lets wake tell the two cases apart without that
// deadlock window.
func (k *Kernel) wake(t *Task) {
	if t == nil {
		return
	}

	k.mu.Lock()
	started := t.started
	if started && !t.parked {
		// t was never actually descheduled — it kept running past its last
		// preemption mark and is already the task doing the work the
		// scheduler core just confirmed should be running. Nothing to
		// deliver; just clear the stale mark.
		t.preempted = false
		k.mu.Unlock()
		return
	}
	var retval Event
	if started {
		// Case B iff posted_event_vec is nonzero: the task was released
		// from suspension and this is its first resume. Case A (a merely
		// preempted ready task) leaves posted_event_vec at zero and the
		// delivered value is discarded by the receiver.
		retval = t.postedEventVec
		t.postedEventVec = 0
	}
	t.started = true
	t.preempted = false
	k.mu.Unlock()

	if !started {
		go k.launch(t)
		return
	}
	t.turnCh <- retval
}

// parkSelf blocks the calling goroutine on its own turnCh, marking t as
// parked first so that a concurrent wake (driven by another goroutine's
// Tick or SetEvent) knows it is safe to deliver the baton rather than
// racing ahead of this task ever reaching the receive. Callers must set
// t.parked = true under k.mu in the same critical section that decided to
// deschedule t, before releasing the lock — see WaitForEvent and setEvent.
func (k *Kernel) parkSelf(t *Task) Event {
	v := <-t.turnCh
	k.mu.Lock()
	t.parked = false
	k.mu.Unlock()
	return v
}

// launch runs a task's entry point for the first time. Because every
// stack is prepared identically (spec.md §4.1), first activation needs no
// special-case branch here beyond simply calling fn — the "first call"
// and "resume" paths are unified at the caller (wake/WaitForEvent both
// just deliver a value down turnCh or start the goroutine fresh).
func (k *Kernel) launch(t *Task) {
	defer func() {
		if r := recover(); r != nil {
			AssertFunc(fmt.Sprintf("task %q panicked: %v", t.name, r))
		}
	}()
	t.fn(t, k)
	// spec.md §4.1: the guard return address at the base of every stack is
	// zero, so a task returning resets the controller. There is no reset
	// vector here, so this is reported as a programming error instead.
	AssertFunc(fmt.Sprintf("task %q entry point returned", t.name))
}
