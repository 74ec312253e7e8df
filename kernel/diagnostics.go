package kernel

import "rtkernel/kernel/ktrace"

// GetTaskOverrunCounter reads (and optionally resets) a task's saturating
// absolute-timer overrun counter (spec.md §6, §8: saturates at 255, never
// wraps). Reading is lock-free per spec.md §5 ("read atomically without
// masking"); resetting takes the kernel's critical section.
func (k *Kernel) GetTaskOverrunCounter(idx int, reset bool) uint8 {
	assertf(idx >= 0 && idx < len(k.tasks), "GetTaskOverrunCounter: index %d out of range", idx)
	t := k.tasks[idx]
	if !reset {
		return uint8(t.cntOverrun)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	v := uint8(t.cntOverrun)
	t.cntOverrun = 0
	return v
}

// GetStackReserve counts the leading sentinel bytes still present in a
// task's simulated stack area (spec.md §6, §8 scenario 6). A lower value
// than expected indicates the task's deepest call chain used more stack
// than provisioned.
func (k *Kernel) GetStackReserve(idx int) uint16 {
	assertf(idx >= 0 && idx < len(k.tasks), "GetStackReserve: index %d out of range", idx)
	return k.tasks[idx].stackReserve()
}

// Snapshot is a point-in-time, read-only view of scheduling state, used by
// cmd/ktop's status display and by tests that want to assert on whole-state
// shape rather than one field at a time.
type Snapshot struct {
	Time      uint32
	Active    string
	ReadyLen  []int
	Suspended []string
}

// Snapshot takes the kernel's critical section and copies out enough state
// to describe the world consistently.
func (k *Kernel) Snapshot() Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()

	s := Snapshot{
		Time:     k.time,
		Active:   taskName(k.active),
		ReadyLen: make([]int, len(k.ready)),
	}
	for i := range k.ready {
		s.ReadyLen[i] = k.ready[i].len()
	}
	for _, t := range k.suspended.tasks {
		s.Suspended = append(s.Suspended, t.name)
	}
	return s
}

// SetTracer installs a tracer for scheduling events. Passing nil disables
// tracing.
func (k *Kernel) SetTracer(tr *ktrace.Tracer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tr = tr
}
