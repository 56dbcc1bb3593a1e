package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus, err := New(Config{Backend: BackendMemory})
	require.NoError(t, err)
	defer bus.Close()

	assert.True(t, bus.IsEnabled())

	received := make(chan EvidenceUploadedEvent, 1)
	unsub, err := bus.Subscribe(SubjectEvidenceUploaded, func(ctx context.Context, data []byte) {
		var evt EvidenceUploadedEvent
		require.NoError(t, json.Unmarshal(data, &evt))
		received <- evt
	})
	require.NoError(t, err)
	defer unsub()

	err = bus.Publish(context.Background(), SubjectEvidenceUploaded, EvidenceUploadedEvent{
		EvidenceID:  "ev-1",
		OwnerUserID: "user-1",
		Fingerprint: "abc123",
	})
	require.NoError(t, err)

	select {
	case evt := <-received:
		assert.Equal(t, "ev-1", evt.EvidenceID)
		assert.Equal(t, "abc123", evt.Fingerprint)
	case <-time.After(time.Second):
		t.Fatal("handler never received the published event")
	}
}

func TestMemoryBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus, err := New(Config{Backend: BackendMemory})
	require.NoError(t, err)
	defer bus.Close()

	var calls int
	var mu sync.Mutex
	unsub, err := bus.Subscribe(SubjectProcessingStarted, func(ctx context.Context, data []byte) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)

	unsub()

	err = bus.Publish(context.Background(), SubjectProcessingStarted, ProcessingStartedEvent{EvidenceID: "ev-1"})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestMemoryBus_HandlerPanicDoesNotPropagate(t *testing.T) {
	bus, err := New(Config{Backend: BackendMemory})
	require.NoError(t, err)
	defer bus.Close()

	done := make(chan struct{})
	_, err = bus.Subscribe(SubjectQuotaExceeded, func(ctx context.Context, data []byte) {
		defer close(done)
		panic("handler exploded")
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		err := bus.Publish(context.Background(), SubjectQuotaExceeded, QuotaExceededEvent{UserID: "user-1"})
		require.NoError(t, err)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "carrier-pigeon"})
	assert.Error(t, err)
}
