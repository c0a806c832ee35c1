package sandbox

// meter enforces the step quota during reference-runtime execution. Programs
// charge steps as they work; the first charge past the quota aborts the run.
type meter struct {
	used  uint64
	quota uint64
}

func newMeter(quota uint64) *meter {
	return &meter{quota: quota}
}

// charge consumes n steps. It returns ErrQuotaExceeded once the quota is
// exhausted; the program must propagate the error immediately.
func (m *meter) charge(n uint64) error {
	m.used += n
	if m.used > m.quota {
		return ErrQuotaExceeded
	}
	return nil
}
