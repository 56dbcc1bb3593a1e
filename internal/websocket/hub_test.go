package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/events"
)

func TestExtractEvidenceID(t *testing.T) {
	assert.Equal(t, "ev1", extractEvidenceID([]byte(`{"evidence_id":"ev1","stage":"ocr"}`)))
	assert.Equal(t, "", extractEvidenceID([]byte(`not json`)))
	assert.Equal(t, "", extractEvidenceID([]byte(`{}`)))
}

func TestHub_BroadcastsProgressToRegisteredClient(t *testing.T) {
	bus, err := events.New(events.Config{})
	require.NoError(t, err)

	h, err := NewHub(bus)
	require.NoError(t, err)
	defer h.Close()

	cl := &client{send: make(chan []byte, 4)}
	h.register("ev1", cl)

	err = bus.Publish(context.Background(), events.SubjectStageTranscriptionProgress, events.StageProgressEvent{
		EvidenceID:      "ev1",
		Stage:           "transcription",
		PercentComplete: 50,
	})
	require.NoError(t, err)

	select {
	case msg := <-cl.send:
		assert.Equal(t, "ev1", extractEvidenceID(msg))
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast message, got none")
	}
}

func TestHub_DoesNotBroadcastToOtherEvidenceRooms(t *testing.T) {
	bus, err := events.New(events.Config{})
	require.NoError(t, err)

	h, err := NewHub(bus)
	require.NoError(t, err)
	defer h.Close()

	cl := &client{send: make(chan []byte, 4)}
	h.register("ev1", cl)

	err = bus.Publish(context.Background(), events.SubjectStageOCRProgress, events.StageProgressEvent{
		EvidenceID: "other-evidence",
		Stage:      "ocr",
	})
	require.NoError(t, err)

	select {
	case <-cl.send:
		t.Fatal("client in ev1's room should not receive other-evidence's broadcast")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	bus, err := events.New(events.Config{})
	require.NoError(t, err)

	h, err := NewHub(bus)
	require.NoError(t, err)
	defer h.Close()

	cl := &client{send: make(chan []byte, 4)}
	h.register("ev1", cl)
	h.unregister("ev1", cl)

	_, ok := <-cl.send
	assert.False(t, ok)
}

func TestHub_CloseUnsubscribesAndClosesClients(t *testing.T) {
	bus, err := events.New(events.Config{})
	require.NoError(t, err)

	h, err := NewHub(bus)
	require.NoError(t, err)

	cl := &client{send: make(chan []byte, 4)}
	h.register("ev1", cl)

	h.Close()

	_, ok := <-cl.send
	assert.False(t, ok)

	err = bus.Publish(context.Background(), events.SubjectStageTranscriptionProgress, events.StageProgressEvent{EvidenceID: "ev1"})
	require.NoError(t, err)
}
