package backoff_test

import (
	"testing"
	"time"

	"github.com/braunsonm/cloud-controller-ng/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for poll := 1; poll <= 10; poll++ {
		if got := c.Delay(poll); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", poll, got, 5*time.Second)
		}
	}
}

func TestLinear_GrowsLinearly(t *testing.T) {
	l := backoff.NewLinear(time.Second, time.Minute)

	tests := []struct {
		poll int
		want time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 3 * time.Second},
		{5, 5 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := l.Delay(tt.poll); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.poll, got, tt.want)
		}
	}
}

func TestLinear_CapsAtMax(t *testing.T) {
	l := backoff.NewLinear(time.Second, 5*time.Second)

	if got := l.Delay(10); got != 5*time.Second {
		t.Errorf("Delay(10) = %v, want %v (capped at Max)", got, 5*time.Second)
	}
	if got := l.Delay(100); got != 5*time.Second {
		t.Errorf("Delay(100) = %v, want %v (capped at Max)", got, 5*time.Second)
	}
}

func TestExponential_DoublesEachPoll(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		poll int
		want time.Duration
	}{
		{1, 1 * time.Second},  // 1 * 2^0
		{2, 2 * time.Second},  // 1 * 2^1
		{3, 4 * time.Second},  // 1 * 2^2
		{4, 8 * time.Second},  // 1 * 2^3
		{5, 16 * time.Second}, // 1 * 2^4
	}
	for _, tt := range tests {
		if got := e.Delay(tt.poll); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.poll, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(5); got != 10*time.Second {
		t.Errorf("Delay(5) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
	if got := e.Delay(20); got != 10*time.Second {
		t.Errorf("Delay(20) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestExponentialWithJitter_StaysWithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 8*time.Second)

	for poll := 1; poll <= 10; poll++ {
		for i := 0; i < 50; i++ {
			got := e.Delay(poll)
			if got < 0 {
				t.Fatalf("Delay(%d) = %v, want >= 0", poll, got)
			}
			if got > 8*time.Second {
				t.Fatalf("Delay(%d) = %v, want <= %v", poll, got, 8*time.Second)
			}
		}
	}
}

func TestDefaultStrategy_ConstantMinute(t *testing.T) {
	s := backoff.DefaultStrategy()
	for poll := 1; poll <= 5; poll++ {
		if got := s.Delay(poll); got != 60*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", poll, got, 60*time.Second)
		}
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		d        time.Duration
		min, max time.Duration
		want     time.Duration
	}{
		{"within bounds", 30 * time.Second, time.Second, time.Hour, 30 * time.Second},
		{"below min", 100 * time.Millisecond, time.Second, time.Hour, time.Second},
		{"above max", 2 * time.Hour, time.Second, time.Hour, time.Hour},
		{"zero min disabled", 100 * time.Millisecond, 0, time.Hour, 100 * time.Millisecond},
		{"zero max disabled", 2 * time.Hour, time.Second, 0, 2 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backoff.Clamp(tt.d, tt.min, tt.max); got != tt.want {
				t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.d, tt.min, tt.max, got, tt.want)
			}
		})
	}
}
