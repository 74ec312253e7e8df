package kernel

// TriggerUserISR00 and TriggerUserISR01 stand in for the two optional user
// interrupt service routines of spec.md §4.6: hardware hooks that post a
// fixed event bit and enter the set_event code path. In this simulation
// they are invoked from whatever goroutine models the interrupt source
// (e.g. a demo UART receive callback). The real hook points
// (enable_irq_user_00/01) are not modeled here — Config carries only the
// UserISR00Enabled/UserISR01Enabled switches — since they are pure
// hardware register writes with no portable Go equivalent.
func (k *Kernel) TriggerUserISR00() {
	assertf(k.cfg.UserISR00Enabled, "TriggerUserISR00: user ISR 0 not enabled in Config")
	k.SetEvent(nil, EvtISRUser00)
}

func (k *Kernel) TriggerUserISR01() {
	assertf(k.cfg.UserISR01Enabled, "TriggerUserISR01: user ISR 1 not enabled in Config")
	k.SetEvent(nil, EvtISRUser01)
}
