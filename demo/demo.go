// Package demo wires up a small board configuration exercising every
// scheduling path the kernel package supports: priority preemption, round
// robin, both timer kinds, and the first optional user ISR. It exists for
// cmd/ktop and is deliberately self-contained rather than configurable,
// the way the teacher's own inspection commands hardcode their one job.
package demo

import (
	"fmt"
	"time"

	"rtkernel/kernel"
)

const evtSensorReady kernel.Event = 1 << 6

// TaskCount is the number of InitTask calls Setup makes. It is not
// data-driven by Config, so any board config passed to Setup (whether the
// built-in BoardConfig or one loaded from YAML) must describe exactly this
// many tasks — see RequireCompatible.
const TaskCount = 3

// BoardConfig is the reference board this demo targets: three tasks across
// two priority classes, round robin enabled, a 32-bit tick clock at 2ms,
// with the first user ISR wired to the watchdog task.
func BoardConfig() kernel.Config {
	cfg := kernel.DefaultConfig(TaskCount, 2)
	cfg.MaxTasksPerClass = 4
	cfg.UserISR00Enabled = true
	return cfg
}

// RequireCompatible reports an error if cfg cannot back this package's
// Setup: Setup's InitTask calls are fixed at three (sensor, actuator,
// watchdog), so a board config — in particular one loaded from YAML via
// kernel.LoadBoardConfig rather than BoardConfig — describing a different
// TaskCount would otherwise trip InitRTOS's "every task index was
// initialized" assertion or InitTask's own index-range assertion.
func RequireCompatible(cfg kernel.Config) error {
	if cfg.TaskCount != TaskCount {
		return fmt.Errorf("demo: board describes %d tasks, but demo.Setup always registers %d (sensor, actuator, watchdog)", cfg.TaskCount, TaskCount)
	}
	return nil
}

// Setup registers the demo's three tasks. Passed to Kernel.InitRTOS.
//
//   - sensor (idx 0, class 0, round-robin): polls on a delay timer and
//     posts evtSensorReady for actuator to consume.
//   - actuator (idx 1, class 1, highest priority): waits for
//     evtSensorReady and, once woken, waits again with an absolute-timer
//     deadline to show overrun accounting under load.
//   - watchdog (idx 2, class 0, round-robin): wakes on the first user ISR
//     or a 200-tick delay timer, and counts how many times it has fired.
func Setup(k *kernel.Kernel) {
	k.InitTask(0, "sensor", sensorTask, 0, 4, 256)
	k.InitTask(1, "actuator", actuatorTask, 1, 0, 256)
	k.InitTask(2, "watchdog", watchdogTask, 0, 4, 128)
}

func sensorTask(self *kernel.Task, k *kernel.Kernel) {
	for {
		k.WaitForEvent(self, kernel.EvtDelayTimer, false, 10)
		k.SetEvent(self, evtSensorReady)
	}
}

func actuatorTask(self *kernel.Task, k *kernel.Kernel) {
	for {
		k.WaitForEvent(self, evtSensorReady, true, 0)
		self.MarkStackUsed(96)
		k.WaitForEvent(self, kernel.EvtAbsoluteTimer, false, 5)
	}
}

func watchdogTask(self *kernel.Task, k *kernel.Kernel) {
	fired := 0
	for {
		k.WaitForEvent(self, kernel.EvtISRUser00|kernel.EvtDelayTimer, true, 200)
		fired++
	}
}

// IdleBody is the demo's idle task: it just spins, yielding the processor
// back to the scheduler each time through Checkpoint (see kernel/context.go
// for why a Go idle task needs to cooperate this way).
func IdleBody(self *kernel.Task, k *kernel.Kernel) {
	for {
		k.Checkpoint(self)
		time.Sleep(time.Millisecond)
	}
}

// FormatSnapshot renders a kernel.Snapshot the way cmd/ktop prints it.
func FormatSnapshot(s kernel.Snapshot) string {
	return fmt.Sprintf("t=%-10d active=%-10s ready=%v suspended=%v", s.Time, s.Active, s.ReadyLen, s.Suspended)
}
