package health

import (
	"context"
	"errors"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestResultConstructors(t *testing.T) {
	errBoom := errors.New("boom")

	if r := Healthy("fine"); r.Status != StatusHealthy || r.Message != "fine" || r.Timestamp.IsZero() {
		t.Errorf("Healthy() = %+v", r)
	}
	if r := Degraded("slow"); r.Status != StatusDegraded || r.Message != "slow" {
		t.Errorf("Degraded() = %+v", r)
	}
	r := Unhealthy("down", errBoom)
	if r.Status != StatusUnhealthy || !errors.Is(r.Error, errBoom) {
		t.Errorf("Unhealthy() = %+v", r)
	}

	r = Healthy("fine").WithDetails(map[string]any{"keys": 2})
	if r.Details["keys"] != 2 {
		t.Errorf("Details = %v", r.Details)
	}
}

func TestCheckerFunc(t *testing.T) {
	c := NewCheckerFunc("custom", func(context.Context) Result { return Degraded("meh") })
	if c.Name() != "custom" {
		t.Errorf("Name() = %q", c.Name())
	}
	if got := c.Check(context.Background()); got.Status != StatusDegraded {
		t.Errorf("Check().Status = %v", got.Status)
	}
}
