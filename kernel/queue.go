package kernel

// readyQueue is the FIFO of due tasks within one priority class. The
// teacher's server.TaskQueue (container/heap, ordered by start time) shares
// the same "named slice type with its own method set" shape; it is adapted
// here to plain FIFO-on-append/shift rather than a heap, because spec.md
// §4.2 requires strict release order among equal-priority tasks, a stronger
// guarantee than a time-keyed heap gives on ties.
type readyQueue struct {
	tasks []*Task
}

func (q *readyQueue) len() int { return len(q.tasks) }

func (q *readyQueue) head() *Task {
	if len(q.tasks) == 0 {
		return nil
	}
	return q.tasks[0]
}

func (q *readyQueue) pushBack(t *Task) {
	q.tasks = append(q.tasks, t)
}

// popFront removes and returns the active task (the head) — used when the
// active task blocks in WaitForEvent.
func (q *readyQueue) popFront() *Task {
	if len(q.tasks) == 0 {
		return nil
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t
}

// rotate moves the head to the tail, used by round-robin expiry
// (spec.md §4.3 step 3). A no-op on queues of length < 2.
func (q *readyQueue) rotate() {
	if len(q.tasks) < 2 {
		return
	}
	head := q.tasks[0]
	q.tasks = append(q.tasks[1:], head)
}

// suspendedList holds every task blocked in WaitForEvent. Order is
// insignificant for scheduling (spec.md §4.2 only orders the ready queues),
// but is kept FIFO for stable diagnostics output.
type suspendedList struct {
	tasks []*Task
}

func (s *suspendedList) add(t *Task) {
	s.tasks = append(s.tasks, t)
}

func (s *suspendedList) len() int { return len(s.tasks) }
