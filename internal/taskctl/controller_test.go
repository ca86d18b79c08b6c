package taskctl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_CompletesBeforeTimeout(t *testing.T) {
	c := New(nil)

	got, err := c.Submit(context.Background(), "op", time.Second, func(ctx context.Context) (any, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.False(t, c.IsActive("op"))
}

func TestSubmit_Timeout(t *testing.T) {
	c := New(nil)

	started := time.Now()
	_, err := c.Submit(context.Background(), "slow", 50*time.Millisecond, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(started), time.Second)
	assert.False(t, c.IsActive("slow"))
}

func TestSubmit_LateResultDiscarded(t *testing.T) {
	c := New(nil)

	release := make(chan struct{})
	_, err := c.Submit(context.Background(), "late", 30*time.Millisecond, func(ctx context.Context) (any, error) {
		<-release
		return "too late", nil
	})
	assert.ErrorIs(t, err, ErrTimeout)

	// Unblock the straggler; it must not change anything observable.
	close(release)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.IsActive("late"))
}

func TestSubmit_UnderlyingError(t *testing.T) {
	c := New(nil)

	boom := errors.New("boom")
	_, err := c.Submit(context.Background(), "fail", time.Second, func(ctx context.Context) (any, error) {
		return nil, boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrCancelled)
}

func TestSubmit_ResubmitCancelsPrior(t *testing.T) {
	c := New(nil)

	firstStarted := make(chan struct{})
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.SubmitUnbounded(context.Background(), "shared", func(ctx context.Context) (any, error) {
			close(firstStarted)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		firstErr <- err
	}()
	<-firstStarted

	got, err := c.Submit(context.Background(), "shared", time.Second, func(ctx context.Context) (any, error) {
		return "second", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("first submission did not resolve")
	}

	assert.Equal(t, 0, c.ActiveCount())
}

func TestCancel(t *testing.T) {
	c := New(nil)

	started := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		_, err := c.SubmitUnbounded(context.Background(), "work", func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		result <- err
	}()
	<-started

	c.Cancel("work")

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("cancelled submission did not resolve")
	}
}

func TestCancel_AbsentIDIsNoOp(t *testing.T) {
	c := New(nil)
	c.Cancel("ghost")
	c.CancelByPrefix("ghost-")
	c.CancelAll()
	assert.Zero(t, c.Stats().Cancelled)
}

func TestCancelByPrefix(t *testing.T) {
	c := New(nil)

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	start := make(chan struct{}, 3)
	for _, id := range []string{"render-1", "render-2", "audio-1"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := c.SubmitUnbounded(context.Background(), id, func(ctx context.Context) (any, error) {
				start <- struct{}{}
				<-ctx.Done()
				return nil, ctx.Err()
			})
			errs <- err
		}(id)
	}
	for i := 0; i < 3; i++ {
		<-start
	}

	c.CancelByPrefix("render-")

	waitFor(t, func() bool { return c.ActiveCount() == 1 })
	assert.Equal(t, []string{"audio-1"}, c.ActiveIDs())

	c.CancelAll()
	wg.Wait()
	close(errs)
	count := 0
	for err := range errs {
		assert.ErrorIs(t, err, ErrCancelled)
		count++
	}
	assert.Equal(t, 3, count)
}

func TestCancelNonEssential_SparesEssential(t *testing.T) {
	c := New(nil)

	start := make(chan struct{}, 2)
	done := make(chan error, 2)
	go func() {
		_, err := c.SubmitUnbounded(context.Background(), "essential", func(ctx context.Context) (any, error) {
			start <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		}, Essential())
		done <- err
	}()
	go func() {
		_, err := c.SubmitUnbounded(context.Background(), "disposable", func(ctx context.Context) (any, error) {
			start <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		})
		done <- err
	}()
	<-start
	<-start

	c.CancelNonEssential()

	waitFor(t, func() bool { return c.ActiveCount() == 1 })
	assert.True(t, c.IsActive("essential"))
	assert.False(t, c.IsActive("disposable"))

	c.CancelAll()
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-done, ErrCancelled)
	}
}

func TestSubmit_ParentContextCancellation(t *testing.T) {
	c := New(nil)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		_, err := c.SubmitUnbounded(ctx, "parented", func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		result <- err
	}()
	<-started

	cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("submission did not observe parent cancellation")
	}
}

func TestStats(t *testing.T) {
	c := New(nil)

	_, _ = c.Submit(context.Background(), "a", time.Second, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	_, _ = c.Submit(context.Background(), "b", 10*time.Millisecond, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	started := make(chan struct{})
	go func() {
		_, _ = c.SubmitUnbounded(context.Background(), "c", func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
	}()
	<-started
	c.Cancel("c")

	waitFor(t, func() bool { return c.Stats().Cancelled == 1 })
	stats := c.Stats()
	assert.Equal(t, int64(3), stats.Submitted)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Cancelled)

	c.ResetStats()
	assert.Equal(t, Stats{}, c.Stats())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
