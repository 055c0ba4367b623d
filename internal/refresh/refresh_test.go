package refresh

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"freecal/internal/model"
	"freecal/internal/source"
)

func TestRefreshPublishesSnapshot(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := New(func(context.Context) source.Set {
		n := calls.Add(1)
		return source.Set{Sources: make([]model.Source, n)}
	})

	if _, ok := r.Snapshot(); ok {
		t.Fatal("snapshot before first refresh")
	}

	r.Refresh(context.Background())
	snap, ok := r.Snapshot()
	if !ok || len(snap.Sources) != 1 || snap.LoadedAt.IsZero() {
		t.Fatalf("first snapshot = %+v, %v", snap, ok)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Refresh(context.Background())
			r.Snapshot()
		}()
	}
	wg.Wait()

	snap, _ = r.Snapshot()
	if len(snap.Sources) != 9 || calls.Load() != 9 {
		t.Fatalf("after concurrent refreshes: %d sources, %d calls", len(snap.Sources), calls.Load())
	}
}

func TestStartValidatesSchedule(t *testing.T) {
	t.Parallel()

	r := New(func(context.Context) source.Set { return source.Set{} })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx, "every now and then"); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
	if _, ok := r.Next(); ok {
		t.Fatal("no schedule expected after failed Start")
	}
	if err := r.Start(ctx, "*/5 * * * *"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if next, ok := r.Next(); !ok || next.IsZero() {
		t.Fatalf("Next() = %v, %v", next, ok)
	}
}
