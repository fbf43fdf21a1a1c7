package app

// StopReason says why the daemon is shutting down. It is logged and decides
// the process exit status.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopIdle       StopReason = "activity timeout"
	StopFatalError StopReason = "fatal error"
)

// ExitCode is 0 for orderly shutdowns and 1 after a fatal error.
func (r StopReason) ExitCode() int {
	if r == StopFatalError {
		return 1
	}
	return 0
}
