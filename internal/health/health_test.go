package health

import "testing"

func TestNewSamplerBuildsForCurrentProcess(t *testing.T) {
	s, err := NewSampler(0)
	if err != nil {
		t.Fatal(err)
	}
	if s.pid <= 0 {
		t.Errorf("pid = %d, want positive", s.pid)
	}
}
