package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var errBoom = errors.New("boom")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, cooldown time.Duration, opts ...BreakerOption) (*Breaker, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(maxFailures, cooldown, opts...)
	b.now = c.now
	return b, c
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	for i := 0; i < 2; i++ {
		if err := b.Do(fail); !errors.Is(err, errBoom) {
			t.Fatalf("expected fn error, got %v", err)
		}
	}
	if b.State() != StateClosed || b.Failures() != 2 {
		t.Fatalf("expected closed with 2 failures, got %v/%d", b.State(), b.Failures())
	}
	_ = b.Do(fail)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Fatalf("expected rejection without calling fn, got %v called=%v", err, called)
	}
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	b, _ := newTestBreaker(2, time.Second)
	_ = b.Do(fail)
	_ = b.Do(succeed)
	_ = b.Do(fail)
	if b.State() != StateClosed {
		t.Fatalf("non-consecutive failures must not open the breaker")
	}
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	b, c := newTestBreaker(1, time.Second)
	_ = b.Do(fail)

	c.advance(999 * time.Millisecond)
	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected open before cooldown, got %v", err)
	}

	c.advance(time.Millisecond)
	if err := b.Do(fail); !errors.Is(err, errBoom) {
		t.Fatalf("expected trial call, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("failed trial must reopen, got %v", b.State())
	}

	c.advance(time.Second)
	if err := b.Do(succeed); err != nil {
		t.Fatalf("expected trial success, got %v", err)
	}
	if b.State() != StateClosed || b.Failures() != 0 {
		t.Fatalf("successful trial must close, got %v/%d", b.State(), b.Failures())
	}
}

func TestBreaker_SingleTrialAtATime(t *testing.T) {
	b, c := newTestBreaker(1, time.Second)
	_ = b.Do(fail)
	c.advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected second caller rejected during trial, got %v", err)
	}
	close(release)
	wg.Wait()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after trial, got %v", b.State())
	}
}

func TestBreaker_StateChangeCallbackAndReset(t *testing.T) {
	var transitions []string
	b, _ := newTestBreaker(1, time.Minute, WithStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}))
	_ = b.Do(fail)
	b.Reset()

	if len(transitions) != 2 || transitions[0] != "closed->open" || transitions[1] != "open->closed" {
		t.Fatalf("unexpected transitions %v", transitions)
	}
	if NewBreaker(0, time.Second).maxFailures != 1 {
		t.Fatal("expected maxFailures clamped to 1")
	}
}

func TestProperty_BreakerOpensExactlyAtThreshold(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("open iff the trailing failure run reaches the threshold", prop.ForAll(
		func(maxFailures int, outcomes []bool) bool {
			b, _ := newTestBreaker(maxFailures, time.Hour)
			run := 0
			for _, ok := range outcomes {
				if b.State() == StateOpen {
					return errors.Is(b.Do(succeed), ErrOpen)
				}
				if ok {
					_ = b.Do(succeed)
					run = 0
				} else {
					_ = b.Do(fail)
					run++
				}
				if (run >= maxFailures) != (b.State() == StateOpen) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 6),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
