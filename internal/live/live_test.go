package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"foreman/api/internal/aggregate"
)

func TestPublishRejectsStalePass(t *testing.T) {
	state := NewState()
	first := state.BeginPass()
	second := state.BeginPass()

	if ok := state.Publish(second, []aggregate.Row{{FileName: "new.pdf"}}, nil, nil); !ok {
		t.Fatalf("publishing the newer pass must succeed")
	}
	if ok := state.Publish(first, []aggregate.Row{{FileName: "stale.pdf"}}, nil, nil); ok {
		t.Fatalf("stale pass must not overwrite a newer snapshot")
	}

	snap := state.Current()
	if snap.Generation != second {
		t.Errorf("generation = %d, want %d", snap.Generation, second)
	}
	if len(snap.Rows) != 1 || snap.Rows[0].FileName != "new.pdf" {
		t.Errorf("snapshot rows = %+v, want the newer pass", snap.Rows)
	}
}

func TestCurrentZeroBeforeFirstPass(t *testing.T) {
	state := NewState()
	if snap := state.Current(); snap.Generation != 0 || snap.Rows != nil {
		t.Fatalf("expected empty snapshot before any pass, got %+v", snap)
	}
}

func TestWatcherCoalescesKicks(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var (
		mu    sync.Mutex
		count int
	)
	w := NewWatcher(func(ctx context.Context) error {
		mu.Lock()
		count++
		mu.Unlock()
		started <- struct{}{}
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	<-started // initial pass running
	for i := 0; i < 5; i++ {
		w.Kick()
	}
	release <- struct{}{} // finish the initial pass

	<-started // exactly one coalesced follow-up
	release <- struct{}{}

	select {
	case <-started:
		t.Fatalf("extra pass ran; five kicks during a pass must coalesce into one")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	<-done
	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("expected 2 passes (initial + coalesced), got %d", count)
	}
}

func TestWatcherKickAfterIdle(t *testing.T) {
	passes := make(chan struct{}, 8)
	w := NewWatcher(func(ctx context.Context) error {
		passes <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitPass := func(what string) {
		select {
		case <-passes:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", what)
		}
	}

	waitPass("initial pass")
	w.Kick()
	waitPass("pass after idle kick")
}

func TestForwardTurnsSignalsIntoPasses(t *testing.T) {
	passes := make(chan struct{}, 8)
	w := NewWatcher(func(ctx context.Context) error {
		passes <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan struct{}, 1)
	go w.Run(ctx)
	go w.Forward(ctx, signals)

	select {
	case <-passes: // initial
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for initial pass")
	}

	signals <- struct{}{}
	select {
	case <-passes:
	case <-time.After(time.Second):
		t.Fatalf("listener signal did not trigger a pass")
	}
}
