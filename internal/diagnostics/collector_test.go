package diagnostics

import "testing"

func TestCollect(t *testing.T) {
	c := NewCollector()

	s := c.Collect()
	if s.MemTotalMB <= 0 {
		t.Skip("memory probe unavailable in this environment")
	}
	if s.MemAvailableMB > s.MemTotalMB {
		t.Errorf("available %v exceeds total %v", s.MemAvailableMB, s.MemTotalMB)
	}
	if s.CPUCores <= 0 {
		t.Errorf("cpu cores = %d", s.CPUCores)
	}

	// Second snapshot has a CPU delta to measure against.
	s2 := c.Collect()
	if s2.CPUPercent < 0 || s2.CPUPercent > 100 {
		t.Errorf("cpu percent = %v", s2.CPUPercent)
	}
}
