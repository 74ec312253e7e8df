package kernel

import "fmt"

// AssertFunc is invoked when the kernel detects a programming error: a
// misused API call, not a runtime condition (spec.md §7). The default
// panics, which is the closest Go analogue to "halts the controller" — an
// application may install its own hook (e.g. to log and reboot) the same
// way the teacher lets callers inject behavior via ForkCreator and
// SetVerbCaller instead of hardcoding a policy into the core.
var AssertFunc func(msg string) = func(msg string) {
	panic("kernel: " + msg)
}

func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		AssertFunc(fmt.Sprintf(format, args...))
	}
}
