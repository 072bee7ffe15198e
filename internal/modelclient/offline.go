package modelclient

import "fmt"

// ErrOfflineModeViolation is raised by calls gated by requireOnline when the
// adapter is configured offline-by-default and online_mode was not
// explicitly set (spec §5: "no socket opens" without that flag).
type ErrOfflineModeViolation struct {
	Operation string
}

func (e *ErrOfflineModeViolation) Error() string {
	return fmt.Sprintf("modelclient: %s requires online_mode, core is offline-by-default", e.Operation)
}

// requireOnline is the dedicated "network required" gate: it is checked
// before any call that would open a socket, ahead of the circuit breaker
// and retry logic, so an offline misconfiguration never dispatches even
// once.
func requireOnline(onlineMode bool, operation string) error {
	if !onlineMode {
		return &ErrOfflineModeViolation{Operation: operation}
	}
	return nil
}
