package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNew_MemoryDriver(t *testing.T) {
	tests := []struct {
		name   string
		driver string
	}{
		{name: "explicit_memory", driver: DriverMemory},
		{name: "empty_defaults_to_memory", driver: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(context.Background(), Options{Driver: tt.driver})
			if err != nil {
				t.Fatalf("New() error = %v, want nil", err)
			}

			ml, ok := l.(*MemoryLimiter)
			if !ok {
				t.Fatalf("New() returned %T, want *MemoryLimiter", l)
			}
			ml.Close()
		})
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Options{Driver: "etcd"})
	if err == nil {
		t.Fatal("New() error = nil, want unknown driver error")
	}
}

func TestDefaultConfigs(t *testing.T) {
	login := DefaultLoginConfig()
	register := DefaultRegisterConfig()

	// Login and registration carry distinct budgets: their abuse profiles differ
	if login == register {
		t.Error("login and register configs are identical, want distinct policies")
	}
	if login.MaxRequests <= 0 || login.Window <= 0 {
		t.Errorf("login config = %+v, want positive bounds", login)
	}
	if register.MaxRequests <= 0 || register.Window <= 0 {
		t.Errorf("register config = %+v, want positive bounds", register)
	}
}

func TestCeilSeconds(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want int
	}{
		{name: "exact_seconds", d: 60 * time.Second, want: 60},
		{name: "rounds_up", d: 1500 * time.Millisecond, want: 2},
		{name: "sub_second_floor_is_one", d: 10 * time.Millisecond, want: 1},
		{name: "zero_floor_is_one", d: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ceilSeconds(tt.d); got != tt.want {
				t.Errorf("ceilSeconds(%v) = %d, want %d", tt.d, got, tt.want)
			}
		})
	}
}
