// Package kernel is the hard core of the RTOS re-expression: the task
// descriptor store, the ready/suspended lists, the scheduler core, the
// timer tick handler, and the wait/set-event primitives of spec.md §§3-5.
//
// There is no hardware here. "Context switch" is a handoff between
// goroutines over a per-task channel rather than a stack-pointer swap —
// see context.go for the mechanics and for why a task must call
// Checkpoint, WaitForEvent, or SetEvent periodically to remain
// preemptible (a Go goroutine cannot be stopped mid-instruction the way a
// real CPU can be by a timer interrupt).
package kernel

import (
	"sync"
	"time"

	"rtkernel/kernel/ktrace"
)

// Kernel is the single, process-wide scheduler instance. Like the
// original's global state (spec.md §9), it is modeled as one value
// constructed by NewKernel and never destroyed short of process exit.
type Kernel struct {
	mu sync.Mutex

	cfg       Config
	tasks     []*Task // index 0..N-1, application tasks
	idle      *Task
	ready     []readyQueue
	suspended suspendedList
	active    *Task

	time uint32 // wrapping tick counter

	started bool
	ticker  *time.Ticker
	stopCh  chan struct{}

	tr *ktrace.Tracer
}

// NewKernel allocates the descriptor store for cfg.TaskCount application
// tasks plus one idle task, per spec.md §3 ("Task Descriptor Store").
// Tasks are registered with InitTask before InitRTOS is called; no task
// may be added afterward (spec.md Non-goals: no dynamic task creation).
func NewKernel(cfg Config) *Kernel {
	if err := cfg.validate(); err != nil {
		AssertFunc(err.Error())
		return nil
	}
	k := &Kernel{
		cfg:    cfg,
		tasks:  make([]*Task, cfg.TaskCount),
		ready:  make([]readyQueue, cfg.PriorityClasses),
		time:   ^uint32(0) & cfg.TickWidth.mask(), // first tick's value is 0, per spec.md §3
		stopCh: make(chan struct{}),
	}
	return k
}

// InitTask registers one application task (spec.md §6, init_task). It must
// be called only from the application's setup callback, before InitRTOS
// starts the scheduler.
func (k *Kernel) InitTask(idx int, name string, fn Fn, prioClass int, roundRobin uint32, stackSize int) *Task {
	assertf(!k.started, "InitTask called after InitRTOS started")
	assertf(idx >= 0 && idx < len(k.tasks), "InitTask: index %d out of range [0,%d)", idx, len(k.tasks))
	assertf(fn != nil, "InitTask: task %d has nil entry point", idx)
	assertf(prioClass >= 0 && prioClass < len(k.ready), "InitTask: task %d prio class %d out of range", idx, prioClass)
	assertf(stackSize > 0, "InitTask: task %d has zero-size stack", idx)
	if k.cfg.MaxTasksPerClass > 0 {
		assertf(k.ready[prioClass].len() < k.cfg.MaxTasksPerClass,
			"InitTask: prio class %d already holds MaxTasksPerClass (%d) tasks", prioClass, k.cfg.MaxTasksPerClass)
	}
	if !k.cfg.RoundRobinEnabled {
		roundRobin = 0
	}

	t := newTask(idx, name, fn, prioClass, roundRobin, stackSize)
	k.tasks[idx] = t
	k.ready[prioClass].pushBack(t)
	return t
}

// InitRTOS is the kernel's entry point (spec.md §6). It runs setup to
// register every task, starts the tick driver, and hands off to whichever
// task the scheduler core picks first — which need not be idle, since
// InitTask already queued every task as ready. It never returns.
func (k *Kernel) InitRTOS(setup func(*Kernel), idleBody Fn) {
	setup(k)
	for i, t := range k.tasks {
		assertf(t != nil, "InitRTOS: task index %d was never initialized by setup", i)
	}

	k.idle = newTask(len(k.tasks), "idle", idleBody, -1, 0, 0)
	k.idle.isIdle = true

	k.mu.Lock()
	k.active = k.pickActive()
	k.started = true
	if k.cfg.TickInterval > 0 {
		k.ticker = time.NewTicker(k.cfg.TickInterval)
		go k.tickLoop()
	}
	initial := k.active
	// Launched directly below rather than through wake, so mark it started
	// here instead: otherwise the first time this task is later released or
	// preempted and re-selected, wake would read started == false and
	// relaunch it from scratch via go k.launch, abandoning this goroutine
	// mid-flight (parked forever on its own turnCh) instead of delivering
	// its resume value.
	initial.started = true
	k.mu.Unlock()

	// The calling goroutine stands in for the hardware reset vector: it
	// launches whichever task the scheduler core picked first and then
	// blocks forever, matching spec.md's "InitRTOS never returns". Idle is
	// not special-cased — it is launched the same way, lazily, the first
	// time the scheduler core actually picks it.
	go k.launch(initial)
	select {}
}

// Stop halts the tick driver, for code embedding the kernel that needs to
// shut it down (neither cmd/ktop nor the tests call it); spec.md's kernel proper has no shutdown path (it runs until
// reset), so this lives at the edge of the simulation, not in the core.
func (k *Kernel) Stop() {
	k.mu.Lock()
	if k.ticker != nil {
		k.ticker.Stop()
	}
	started := k.started
	k.mu.Unlock()
	if started {
		close(k.stopCh)
	}
}

func (k *Kernel) tickLoop() {
	for {
		select {
		case <-k.ticker.C:
			k.Tick()
		case <-k.stopCh:
			return
		}
	}
}

// pickActive returns the head of the highest non-empty ready class, or
// idle if every class is empty (spec.md §4.2 step 3). Must be called with
// k.mu held.
func (k *Kernel) pickActive() *Task {
	for class := len(k.ready) - 1; class >= 0; class-- {
		if t := k.ready[class].head(); t != nil {
			return t
		}
	}
	return k.idle
}

// checkForTaskActivation is the Scheduler Core (spec.md §4.2). It must be
// called with k.mu held. It returns the task that should become active;
// the caller compares this against the previous active task to decide
// whether a context switch is needed.
func (k *Kernel) checkForTaskActivation(forceRescan bool) *Task {
	released := false

	for i := 0; i < len(k.suspended.tasks); {
		t := k.suspended.tasks[i]
		hit := false
		if t.waitForAny {
			hit = t.postedEventVec != 0
		} else {
			nonTimerMask := t.eventMask &^ timerMask
			timerBits := t.eventMask & timerMask
			allNonTimerSet := nonTimerMask == 0 || (t.postedEventVec&nonTimerMask) == nonTimerMask
			anyTimerSet := timerBits != 0 && (t.postedEventVec&timerBits) != 0
			hit = allNonTimerSet || anyTimerSet
		}

		if !hit {
			i++
			continue
		}

		// Release: clear event_mask, reload the round-robin slice, move
		// from suspended to the tail of its class. posted_event_vec is
		// deliberately left untouched — only the context-switch primitive
		// clears it, after consuming it as the wait's return value
		// (spec.md §4.2 step 2, §4.7).
		t.eventMask = 0
		t.cntRoundRobin = t.timeRoundRobin
		t.state = stateReady
		k.suspended.tasks = append(k.suspended.tasks[:i], k.suspended.tasks[i+1:]...)
		k.ready[t.prioClass].pushBack(t)
		released = true
	}

	if !released && !forceRescan {
		return k.active
	}
	return k.pickActive()
}

// Tick is the Timer Tick Handler (spec.md §4.3). It is driven by
// InitRTOS's internal ticker when the kernel is live, and may also be
// called directly by tests for deterministic, wall-clock-free control over
// scenarios like spec.md §8's "successive resumes at time=20,40,60…".
func (k *Kernel) Tick() {
	k.mu.Lock()

	mask := k.cfg.TickWidth.mask()
	k.time = (k.time + 1) & mask

	for _, t := range k.suspended.tasks {
		if t.eventMask&EvtAbsoluteTimer != 0 && k.time == t.timeDueAt {
			t.postedEventVec |= EvtAbsoluteTimer
		}
		if t.cntDelay > 0 {
			t.cntDelay--
			if t.cntDelay == 0 && t.eventMask&EvtDelayTimer != 0 {
				t.postedEventVec |= EvtDelayTimer
			}
		}
	}

	forceRescan := false
	old := k.active
	if old != nil && !old.isIdle && old.timeRoundRobin > 0 {
		if old.cntRoundRobin > 0 {
			old.cntRoundRobin--
		}
		if old.cntRoundRobin == 0 {
			old.cntRoundRobin = old.timeRoundRobin
			class := &k.ready[old.prioClass]
			if class.len() > 1 {
				class.rotate()
				if k.tr != nil {
					k.tr.RoundRobin(k.time, old.prioClass, old.name)
				}
			}
			forceRescan = true
		}
	}

	newActive := k.checkForTaskActivation(forceRescan)
	switched := newActive != old
	if switched {
		k.active = newActive
		if old != nil {
			old.preempted = true
		}
		if k.tr != nil {
			k.tr.Switch(k.time, taskName(old), taskName(newActive))
		}
	}
	k.mu.Unlock()

	if switched {
		// Driven asynchronously by the tick goroutine, which is not the
		// outgoing task's own goroutine — it cannot block "old" here, only
		// mark it preempted (above) and wake the incoming task.
		k.wake(newActive)
	}
}

func taskName(t *Task) string {
	if t == nil {
		return "<none>"
	}
	return t.name
}

// SetEvent is the Event Post Primitive (spec.md §4.5). caller is the
// posting task's own handle when called from task code (the caller may be
// descheduled but, per spec, is never suspended); pass nil when called
// from a simulated user ISR goroutine, which is not itself a task and so
// cannot be blocked here — see spec.md §4.6.
func (k *Kernel) SetEvent(caller *Task, vec Event) {
	k.setEvent(caller, vec)
}

func (k *Kernel) setEvent(caller *Task, vec Event) {
	vec &^= timerMask // timer bits are system-generated only (spec.md §4.5 step 2)

	k.mu.Lock()
	old := k.active
	var released []string
	for _, t := range k.suspended.tasks {
		if hit := vec & t.eventMask; hit != 0 {
			t.postedEventVec |= hit
			released = append(released, t.name)
		}
	}

	newActive := k.checkForTaskActivation(false)
	switched := newActive != old
	selfDescheduled := switched && caller != nil && old == caller
	if switched {
		k.active = newActive
		if selfDescheduled {
			// The caller is the task being descheduled by its own call: mark
			// it parked before releasing the lock below, in the same
			// critical section, so a concurrent release of caller (another
			// goroutine's Tick or ISR set_event) can never call wake(caller)
			// before caller actually reaches parkSelf's receive — see
			// wake's doc comment.
			caller.parked = true
		} else if old != nil {
			// The task being switched out isn't the one driving this call
			// (a user ISR posted the event, or this is a different task's
			// own call) — it can only be told, not blocked, from here.
			old.preempted = true
		}
		if k.tr != nil {
			k.tr.Switch(k.time, taskName(old), taskName(newActive))
		}
	}
	if k.tr != nil && len(released) > 0 {
		k.tr.EventPost(k.time, uint16(vec), released)
	}
	k.mu.Unlock()

	if !switched {
		return
	}
	k.wake(newActive)
	if selfDescheduled {
		// Block here exactly as a preempted task would, and resume once
		// reactivated. The caller is not suspended — it is still ready,
		// just not running (spec.md §4.5 step 5).
		k.parkSelf(caller)
	}
}

// WaitForEvent is the Wait Primitive (spec.md §4.4). t must be the calling
// task's own handle (passed to it as the first argument of its Fn); it is
// a programming error to call this from idle or with a zero mask.
func (k *Kernel) WaitForEvent(t *Task, mask Event, waitForAll bool, timeout uint32) Event {
	assertf(t != nil && !t.isIdle, "WaitForEvent called from idle")
	assertf(mask != 0, "WaitForEvent: zero event mask")
	bothTimers := mask&EvtAbsoluteTimer != 0 && mask&EvtDelayTimer != 0
	assertf(!bothTimers, "WaitForEvent: both timer bits set in mask (spec.md §9 Open Questions: undefined)")

	k.mu.Lock()
	maskBits := k.cfg.TickWidth.mask()

	if mask&EvtAbsoluteTimer != 0 {
		armAbsoluteTimer(k, t, timeout)
	} else if mask&EvtDelayTimer != 0 {
		t.cntDelay = saturatingAdd(timeout, 1, maskBits)
	} else {
		assertf(timeout == 0, "WaitForEvent: non-timer wait with nonzero timeout")
	}

	t.eventMask = mask
	t.waitForAny = !waitForAll
	t.postedEventVec = 0
	t.state = stateSuspended

	old := k.ready[t.prioClass].popFront()
	assertf(old == t, "WaitForEvent: caller is not the active task of its class")
	k.suspended.add(t)

	newActive := k.pickActive()
	k.active = newActive
	// Mark parked before releasing the lock: a concurrent tick or ISR
	// set_event could otherwise release this same wait and call wake(t)
	// before t ever reaches parkSelf's receive below (see wake's doc
	// comment for why that would deadlock the waker).
	t.parked = true
	if k.tr != nil {
		k.tr.Switch(k.time, t.name, taskName(newActive))
	}
	k.mu.Unlock()

	k.wake(newActive)
	return k.parkSelf(t)
}

// Checkpoint gives a long-running task a chance to honor a pending
// preemption — round-robin expiry or a higher-priority release triggered
// asynchronously by Tick or by a user ISR's SetEvent. A task that never
// calls Checkpoint, WaitForEvent, or SetEvent cannot be preempted by this
// simulation; real hardware does not have this limitation, since its timer
// interrupt can suspend any instruction stream (see the kernel doc
// comment).
func (k *Kernel) Checkpoint(t *Task) {
	k.mu.Lock()
	if !t.preempted {
		k.mu.Unlock()
		return
	}
	// Mark parked in the same critical section as the preempted check, so a
	// concurrent wake(t) can never run between this task deciding to park
	// and it actually reaching parkSelf's receive (see wake's doc comment).
	t.parked = true
	k.mu.Unlock()
	k.parkSelf(t)
}

func armAbsoluteTimer(k *Kernel, t *Task, timeout uint32) {
	mask := k.cfg.TickWidth.mask()
	if !t.absTimerArmed {
		// timeDueAt starts life zero-valued; seed it from the current clock
		// the first time this task arms the absolute timer, rather than
		// arming relative to zero, which would read as an immediate overrun
		// for any task whose first absolute wait happens after time=0.
		t.timeDueAt = k.time
		t.absTimerArmed = true
	}
	t.timeDueAt = (t.timeDueAt + timeout) & mask
	if signedDelta(t.timeDueAt, k.time, k.cfg.TickWidth) <= 0 {
		t.bumpOverrun()
		t.timeDueAt = (k.time + 1) & mask
		if k.tr != nil {
			k.tr.Overrun(k.time, t.name, t.cntOverrun)
		}
	}
}

// signedDelta computes due - now as a signed quantity of the given bit
// width, matching spec.md §4.3's overrun test ("signed distance
// time_due_at - time is ≤ 0"). The result lies in (-half, +half], so a
// deadline exactly half the clock range ahead counts as future.
func signedDelta(due, now uint32, width TickWidth) int64 {
	delta := (due - now) & width.mask()
	half := int64(width.mask()>>1) + 1
	if int64(delta) > half {
		return int64(delta) - int64(width.mask()) - 1
	}
	return int64(delta)
}

func saturatingAdd(a, b, mask uint32) uint32 {
	sum := uint64(a) + uint64(b)
	if sum > uint64(mask) {
		return mask
	}
	return uint32(sum)
}
