package strategy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/domain"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
)

// memStore implements Store in memory.
type memStore struct {
	mu      sync.Mutex
	state   *domstrategy.State
	loadErr error
	saveErr error
	saves   int
}

func (m *memStore) Load(context.Context) (domstrategy.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return domstrategy.State{}, m.loadErr
	}
	if m.state == nil {
		return domstrategy.State{}, domain.ErrNotFound
	}
	return *m.state, nil
}

func (m *memStore) Save(_ context.Context, st domstrategy.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = &st
	m.saves++
	return nil
}

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newTestHolder(s *memStore) *Holder {
	return NewHolder(s, zap.NewNop()).WithClock(func() time.Time { return fixedNow })
}

func TestLoad(t *testing.T) {
	persisted := domstrategy.State{SerendipityBias: 0.4, TemporalWeight: 0.2, TrustSensitivity: 1.2, Generation: 9}
	invalid := domstrategy.State{SerendipityBias: 3, Generation: 1}

	tests := []struct {
		name    string
		store   *memStore
		wantGen int64
		wantB   float64
		wantErr bool
	}{
		{"missing uses defaults", &memStore{}, 1, 0.15, false},
		{"persisted wins", &memStore{state: &persisted}, 9, 0.4, false},
		{"load error keeps defaults and reports", &memStore{loadErr: errors.New("disk")}, 1, 0.15, true},
		{"invalid uses defaults", &memStore{state: &invalid}, 1, 0.15, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHolder(tt.store)
			got, err := h.Load(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Generation != tt.wantGen || got.SerendipityBias != tt.wantB {
				t.Errorf("got %+v", got)
			}
			if h.Snapshot() != got {
				t.Error("snapshot differs from loaded state")
			}
		})
	}
}

func TestUpdate_PersistsThenPublishes(t *testing.T) {
	s := &memStore{}
	h := newTestHolder(s)

	got, err := h.Update(context.Background(), func(st domstrategy.State) domstrategy.State {
		st.SerendipityBias += 0.01
		st.Generation++
		return st
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Generation != 2 || !got.LastUpdated.Equal(fixedNow) {
		t.Errorf("unexpected state: %+v", got)
	}
	if s.saves != 1 || s.state.Generation != 2 {
		t.Errorf("state not persisted: %+v", s.state)
	}
	if h.Snapshot().Generation != 2 {
		t.Error("snapshot not published")
	}
}

func TestUpdate_AfterFailedLoadRereadsBeforeWriting(t *testing.T) {
	stored := domstrategy.State{SerendipityBias: 0.4, TemporalWeight: 0.3, TrustSensitivity: 1, Generation: 57}
	s := &memStore{state: &stored, loadErr: errors.New("i/o timeout")}
	h := newTestHolder(s)
	bump := func(st domstrategy.State) domstrategy.State {
		st.Generation++
		return st
	}

	if _, err := h.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}

	// store still unreadable: nothing may be written
	if _, err := h.Update(context.Background(), bump); !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("err = %v, want ErrPersistenceFailure", err)
	}
	if s.saves != 0 || s.state.Generation != 57 {
		t.Fatalf("stored record overwritten: saves=%d state=%+v", s.saves, s.state)
	}

	s.mu.Lock()
	s.loadErr = nil
	s.mu.Unlock()

	got, err := h.Update(context.Background(), bump)
	if err != nil {
		t.Fatal(err)
	}
	if got.Generation != 58 || got.SerendipityBias != 0.4 {
		t.Errorf("got %+v, want generation 58 built on the stored record", got)
	}
	if s.state.Generation != 58 {
		t.Errorf("stored generation = %d, want 58", s.state.Generation)
	}
}

func TestUpdate_PersistFailureKeepsPriorState(t *testing.T) {
	s := &memStore{saveErr: errors.New("read-only fs")}
	h := newTestHolder(s)
	before := h.Snapshot()

	_, err := h.Update(context.Background(), func(st domstrategy.State) domstrategy.State {
		st.Generation++
		st.SerendipityBias = 0.9
		return st
	})
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
	if h.Snapshot() != before {
		t.Errorf("state changed after failed persist: %+v", h.Snapshot())
	}
}

func TestUpdate_InvalidComputedState(t *testing.T) {
	h := newTestHolder(&memStore{})
	_, err := h.Update(context.Background(), func(st domstrategy.State) domstrategy.State {
		st.TemporalWeight = -1
		return st
	})
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
}

func TestSnapshot_ConcurrentReadersSeeWholeRecords(t *testing.T) {
	h := newTestHolder(&memStore{})
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				st := h.Snapshot()
				// writers keep bias and generation in lockstep
				if want := 0.15 + 0.001*float64(st.Generation-1); st.SerendipityBias < want-1e-9 || st.SerendipityBias > want+1e-9 {
					t.Errorf("torn read: %+v", st)
					return
				}
			}
		}()
	}

	for range 100 {
		_, err := h.Update(ctx, func(st domstrategy.State) domstrategy.State {
			st.Generation++
			st.SerendipityBias = 0.15 + 0.001*float64(st.Generation-1)
			return st
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()
}

// blockingStore waits for the context on Save.
type blockingStore struct{ memStore }

func (b *blockingStore) Save(ctx context.Context, _ domstrategy.State) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestUpdate_TimeoutIsPersistenceFailure(t *testing.T) {
	h := NewHolder(&blockingStore{}, zap.NewNop()).WithTimeout(10 * time.Millisecond)
	before := h.Snapshot()

	_, err := h.Update(t.Context(), func(st domstrategy.State) domstrategy.State {
		st.Generation++
		return st
	})
	if !errors.Is(err, domain.ErrPersistenceFailure) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want persistence failure wrapping deadline", err)
	}
	if h.Snapshot() != before {
		t.Error("snapshot changed after failed persist")
	}
}
