package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_RunsTaskOnWorker(t *testing.T) {
	q := New(4, 2)
	q.Start()
	defer q.Stop()

	var ran int32
	future, err := q.Submit(context.Background(), func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, future.Wait(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestSubmit_PropagatesTaskError(t *testing.T) {
	q := New(4, 1)
	q.Start()
	defer q.Stop()

	wantErr := errors.New("stage failed")
	future, err := q.Submit(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	require.NoError(t, err)
	assert.Equal(t, wantErr, future.Wait(context.Background()))
}

func TestSubmit_RejectsWhenFull(t *testing.T) {
	q := New(1, 1)
	// No Start(): nothing drains the single buffered slot, so it fills up.
	block := make(chan struct{})
	_, err := q.Submit(context.Background(), func(ctx context.Context) error {
		<-block
		return nil
	})
	require.NoError(t, err)

	_, err = q.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.Error(t, err)
	close(block)
}

func TestSubmitBlocking_WaitsForRoom(t *testing.T) {
	q := New(1, 1)
	q.Start()
	defer q.Stop()

	release := make(chan struct{})
	_, err := q.Submit(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, submitErr := q.SubmitBlocking(context.Background(), func(ctx context.Context) error { return nil }, time.Second)
		done <- submitErr
	}()

	close(release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("SubmitBlocking did not return after room freed up")
	}
}

func TestSubmitBlocking_TimesOutWhenStillFull(t *testing.T) {
	q := New(1, 1)
	// No Start(): the one buffered slot stays occupied for the whole test.
	_, err := q.Submit(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	_, err = q.SubmitBlocking(context.Background(), func(ctx context.Context) error { return nil }, 20*time.Millisecond)
	assert.Error(t, err)
}

func TestWorker_RecoversFromTaskPanic(t *testing.T) {
	q := New(4, 1)
	q.Start()
	defer q.Stop()

	future, err := q.Submit(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	require.NoError(t, err)
	assert.Error(t, future.Wait(context.Background()))

	// The worker goroutine must still be alive after the panic.
	future2, err := q.Submit(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, future2.Wait(context.Background()))
}

func TestLenAndCapacity(t *testing.T) {
	q := New(4, 1)
	assert.Equal(t, 4, q.Capacity())
	assert.Equal(t, 0, q.Len())
}
