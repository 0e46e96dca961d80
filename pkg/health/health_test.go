package health

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

type fakeAdapter struct {
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) error {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func TestDependencyChecker(t *testing.T) {
	down := errors.New("connection refused")
	tests := []struct {
		name    string
		checker *DependencyChecker
		want    Status
		wantErr string
	}{
		{"store up", NewStoreChecker(&fakeAdapter{}, time.Second), StatusHealthy, ""},
		{"store down", NewStoreChecker(&fakeAdapter{err: down}, time.Second), StatusUnhealthy, "connection refused"},
		{"cache down", NewCacheChecker(&fakeAdapter{err: down}, time.Second), StatusDegraded, "connection refused"},
		{"store slow", NewStoreChecker(&fakeAdapter{delay: time.Second}, 10*time.Millisecond), StatusUnhealthy, context.DeadlineExceeded.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.checker.Check(context.Background())
			if result.Status != tt.want || result.Error != tt.wantErr {
				t.Fatalf("got status=%s error=%q, want %s %q", result.Status, result.Error, tt.want, tt.wantErr)
			}
			if result.Name != tt.checker.Name() || result.Timestamp.IsZero() {
				t.Fatalf("unexpected result %+v", result)
			}
		})
	}
}

func TestNewDependencyChecker_DefaultTimeout(t *testing.T) {
	c := NewDependencyChecker("x", &fakeAdapter{}, 0, false)
	if c.timeout != defaultCheckTimeout {
		t.Fatalf("expected default timeout, got %v", c.timeout)
	}
}

func TestRegistry_Aggregate(t *testing.T) {
	down := errors.New("down")
	tests := []struct {
		name      string
		store     error
		cache     error
		want      Status
		wantReady bool
	}{
		{"all healthy", nil, nil, StatusHealthy, true},
		{"cache down", nil, down, StatusDegraded, true},
		{"store down", down, nil, StatusUnhealthy, false},
		{"both down", down, down, StatusUnhealthy, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			r.Register(NewStoreChecker(&fakeAdapter{err: tt.store}, time.Second))
			r.Register(NewCacheChecker(&fakeAdapter{err: tt.cache}, time.Second))

			result := r.Check(context.Background())
			if result.Status != tt.want || result.IsReady() != tt.wantReady {
				t.Fatalf("got %s ready=%v, want %s ready=%v", result.Status, result.IsReady(), tt.want, tt.wantReady)
			}
			if len(result.Checks) != 2 || result.Checks[0].Name != "mongodb" || result.Checks[1].Name != "redis" {
				t.Fatalf("expected checks sorted by name, got %+v", result.Checks)
			}
		})
	}
}

func TestRegistry_EmptyIsHealthy(t *testing.T) {
	result := NewRegistry().Check(context.Background())
	if result.Status != StatusHealthy || len(result.Checks) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRegistry_ChecksRunConcurrently(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"a", "b", "c", "d"} {
		r.Register(NewDependencyChecker(name, &fakeAdapter{delay: 50 * time.Millisecond}, time.Second, false))
	}
	start := time.Now()
	r.Check(context.Background())
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("expected concurrent checks, took %v", elapsed)
	}
}

func TestRegistry_RegisterReplacesAndUnregister(t *testing.T) {
	r := NewRegistry()
	first := &fakeAdapter{}
	second := &fakeAdapter{}
	r.Register(NewStoreChecker(first, time.Second))
	r.Register(NewStoreChecker(second, time.Second))
	r.Register(NewCacheChecker(&fakeAdapter{}, time.Second))

	if got := r.List(); !reflect.DeepEqual(got, []string{"mongodb", "redis"}) {
		t.Fatalf("unexpected names %v", got)
	}
	if _, err := r.CheckOne(context.Background(), "mongodb"); err != nil {
		t.Fatalf("CheckOne: %v", err)
	}
	if first.calls.Load() != 0 || second.calls.Load() != 1 {
		t.Fatalf("expected the replacement checker to run, got first=%d second=%d", first.calls.Load(), second.calls.Load())
	}

	r.Unregister("redis")
	if _, err := r.CheckOne(context.Background(), "redis"); err == nil {
		t.Fatal("expected error for unregistered checker")
	}
}
