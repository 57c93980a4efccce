package site

// WakeResult is the outcome of a call to Coordinator.EnsureUp, per
// spec.md §4.G's ensure_up contract.
type WakeResult int

const (
	// Ready means the site is UP and the caller may proxy immediately.
	Ready WakeResult = iota
	// NotReady means the deadline passed before a signal arrived; the
	// starter itself keeps running toward the site's own start_timeout.
	NotReady
	// Failed means the starter's own attempt (this generation) ended in
	// STARTING->DOWN before the caller's deadline.
	Failed
)

func (r WakeResult) String() string {
	switch r {
	case Ready:
		return "Ready"
	case Failed:
		return "Failed"
	default:
		return "NotReady"
	}
}
