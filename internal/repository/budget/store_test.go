package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/aim3/internal/db"
)

type fakeKV struct {
	vals    map[string]int64
	raw     map[string][]byte
	ttls    map[string]time.Duration
	incrErr error
	getErr  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{vals: map[string]int64{}, raw: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if b, ok := f.raw[key]; ok {
		return b, nil
	}
	return nil, db.ErrKeyNotFound
}

func (f *fakeKV) IncrBy(_ context.Context, key string, val int64) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.vals[key] += val
	return f.vals[key], nil
}

func (f *fakeKV) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	if _, ok := f.ttls[key]; ok && nx {
		return nil
	}
	f.ttls[key] = ttl
	return nil
}

func TestAdd_SetsTTLOnce(t *testing.T) {
	kv := newFakeKV()
	s := New(kv)
	ctx := context.Background()

	if n, err := s.Add(ctx, "k", 100, time.Hour); err != nil || n != 100 {
		t.Fatalf("first Add = %d, %v", n, err)
	}
	if n, err := s.Add(ctx, "k", 50, 2*time.Hour); err != nil || n != 150 {
		t.Fatalf("second Add = %d, %v", n, err)
	}
	if kv.ttls["k"] != time.Hour {
		t.Errorf("ttl = %v, want the first one", kv.ttls["k"])
	}
}

func TestAdd_Error(t *testing.T) {
	kv := newFakeKV()
	kv.incrErr = errors.New("conn reset")

	if _, err := New(kv).Add(context.Background(), "k", 1, time.Hour); err == nil {
		t.Fatal("expected error")
	}
}

func TestGet(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		getErr  error
		want    int64
		wantErr bool
	}{
		{name: "missing key is zero", want: 0},
		{name: "stored", raw: []byte("4200"), want: 4200},
		{name: "garbage", raw: []byte("x"), wantErr: true},
		{name: "store down", getErr: errors.New("timeout"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newFakeKV()
			kv.getErr = tt.getErr
			if tt.raw != nil {
				kv.raw["k"] = tt.raw
			}

			got, err := New(kv).Get(context.Background(), "k")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Get = %d, %v; want %d", got, err, tt.want)
			}
		})
	}
}
