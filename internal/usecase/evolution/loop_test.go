package evolution

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/outcome"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
)

func TestRunOnce_RewardSequence(t *testing.T) {
	store := &memStore{}
	h := newHolder(store)
	src := &scriptedOutcomes{windows: [][]outcome.Record{gainWindow(10), gainWindow(12), gainWindow(8)}}
	loop := newLoop(src, h)

	wantTransitions := []Transition{Improve, Improve, Regress}
	wantBias := []float64{0.16, 0.17, 0.15}
	for i, want := range wantTransitions {
		c, err := loop.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if c.Transition != want {
			t.Errorf("cycle %d: transition = %s, want %s", i, c.Transition, want)
		}
		if math.Abs(c.State.SerendipityBias-wantBias[i]) > 1e-9 {
			t.Errorf("cycle %d: bias = %v, want %v", i, c.State.SerendipityBias, wantBias[i])
		}
		if c.State.Generation != int64(i+2) {
			t.Errorf("cycle %d: generation = %d, want %d", i, c.State.Generation, i+2)
		}
	}
	if got := h.Snapshot().TrustSensitivity; math.Abs(got-1.01) > 1e-9 {
		t.Errorf("trust sensitivity = %v, want 1.01", got)
	}
	if loop.PrevReward() != 8 {
		t.Errorf("prev reward = %v, want 8", loop.PrevReward())
	}
	if len(store.saved) != 3 {
		t.Errorf("expected 3 persisted states, got %d", len(store.saved))
	}
	if src.lastN != DefaultWindow {
		t.Errorf("window = %d, want %d", src.lastN, DefaultWindow)
	}
}

func TestRunOnce_EmptyWindowImproves(t *testing.T) {
	loop := New(&scriptedOutcomes{}, newHolder(&memStore{}), Config{}, zap.NewNop())

	c, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Reward != 0 || c.Transition != Improve {
		t.Errorf("unexpected cycle %+v", c)
	}
}

func TestRunOnce_DefaultCostApplies(t *testing.T) {
	src := &scriptedOutcomes{windows: [][]outcome.Record{{{Gain: 0}, {Gain: 0}}}}
	loop := New(src, newHolder(&memStore{}), Config{}, zap.NewNop())

	c, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Two records without cost: -2 * 0.001 * 500.
	if math.Abs(c.Reward-(-1)) > 1e-9 || c.Transition != Regress {
		t.Errorf("unexpected cycle %+v", c)
	}
}

func TestRunOnce_PersistFailureKeepsState(t *testing.T) {
	store := &memStore{}
	h := newHolder(store)
	src := &scriptedOutcomes{windows: [][]outcome.Record{gainWindow(10), gainWindow(20), gainWindow(5)}}
	loop := newLoop(src, h)

	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := h.Snapshot()

	store.setSaveErr(errBoom)
	_, err := loop.RunOnce(context.Background())
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
	if h.Snapshot() != before {
		t.Error("published strategy changed after failed persist")
	}
	if loop.PrevReward() != 10 {
		t.Errorf("prev reward moved on failure: %v", loop.PrevReward())
	}

	// Reward 5 compares against 10, not the unpersisted 20.
	store.setSaveErr(nil)
	c, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.PrevReward != 10 || c.Transition != Regress {
		t.Errorf("unexpected cycle %+v", c)
	}
	if c.State.Generation != before.Generation+1 {
		t.Errorf("generation = %d, want %d", c.State.Generation, before.Generation+1)
	}
}

func TestRunOnce_OutcomeFailure(t *testing.T) {
	store := &memStore{}
	h := newHolder(store)
	loop := newLoop(&scriptedOutcomes{errs: []error{errBoom}}, h)

	_, err := loop.RunOnce(context.Background())
	if !errors.Is(err, domain.ErrOutcomeSourceUnavailable) || !errors.Is(err, errBoom) {
		t.Fatalf("unexpected error %v", err)
	}
	if len(store.saved) != 0 {
		t.Error("nothing should be persisted")
	}
	if h.Snapshot().Generation != domstrategy.InitialGeneration {
		t.Error("generation advanced on failure")
	}
}

func TestRun_RetriesAfterBackoff(t *testing.T) {
	store := &memStore{}
	h := newHolder(store)
	src := &scriptedOutcomes{
		errs:    []error{errBoom, errBoom},
		windows: [][]outcome.Record{gainWindow(1)},
	}
	p := DefaultPolicy()
	p.Weights = unitWeights
	loop := New(src, h, Config{
		Interval: time.Hour,
		Backoff:  5 * time.Millisecond,
		Policy:   p,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for h.Snapshot().Generation < 2 {
		select {
		case <-deadline:
			t.Fatal("loop never recovered from failures")
		case <-time.After(2 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if src.Calls() != 3 {
		t.Errorf("expected 2 failures then 1 success, got %d calls", src.Calls())
	}
}

// panicOnce panics on the first read, then delegates.
type panicOnce struct {
	scriptedOutcomes
	fired bool
}

func (p *panicOnce) Recent(ctx context.Context, n int) ([]outcome.Record, error) {
	p.mu.Lock()
	fired := p.fired
	p.fired = true
	p.mu.Unlock()
	if !fired {
		panic("outcome reader exploded")
	}
	return p.scriptedOutcomes.Recent(ctx, n)
}

func TestRunOnce_PanicBecomesError(t *testing.T) {
	store := &memStore{}
	h := newHolder(store)
	loop := newLoop(&panicOnce{}, h)

	c, err := loop.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "outcome reader exploded") {
		t.Fatalf("err = %v, want recovered panic", err)
	}
	if c != (Cycle{}) || len(store.saved) != 0 {
		t.Errorf("cycle = %+v, saved = %d", c, len(store.saved))
	}

	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatalf("next cycle: %v", err)
	}
	if h.Snapshot().Generation != domstrategy.InitialGeneration+1 {
		t.Errorf("generation = %d after recovery", h.Snapshot().Generation)
	}
}

func TestRun_SurvivesPanickingCycle(t *testing.T) {
	h := newHolder(&memStore{})
	p := DefaultPolicy()
	p.Weights = unitWeights
	loop := New(&panicOnce{}, h, Config{Interval: time.Hour, Backoff: 5 * time.Millisecond, Policy: p}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for h.Snapshot().Generation < 2 {
		select {
		case <-deadline:
			t.Fatal("loop did not recover after a panic")
		case <-time.After(2 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestStartStop(t *testing.T) {
	store := &memStore{}
	h := newHolder(store)
	src := &scriptedOutcomes{}
	loop := New(src, h, Config{Interval: time.Hour}, zap.NewNop())

	loop.Start(context.Background())
	loop.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for src.Calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("first cycle did not run")
		case <-time.After(2 * time.Millisecond):
		}
	}
	loop.Stop()
	loop.Stop()

	if src.Calls() != 1 {
		t.Errorf("expected exactly one cycle, got %d", src.Calls())
	}
}
