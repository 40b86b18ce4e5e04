package kq_test

import (
	"testing"
	"time"

	"kaloriq-go/internal/kq"
)

func TestInSampleRange(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"now", time.Now(), true},
		{"lower bound", kq.MinSampleTime, true},
		{"upper bound", kq.MaxSampleTime, true},
		{"year 1600", time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"year 2300", time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"zero time", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kq.InSampleRange(tt.t); got != tt.want {
				t.Errorf("InSampleRange(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}
