package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInitialize_FallsBackToInfoLevelOnInvalidLevel(t *testing.T) {
	Initialize("not-a-real-level", true)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInitialize_ParsesValidLevel(t *testing.T) {
	Initialize("debug", true)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestGetLogger_ReturnsTheInitializedGlobalLogger(t *testing.T) {
	Initialize("info", true)
	assert.Equal(t, &Log, GetLogger())
}

func TestComponentLoggers_TagTheirOwnComponentField(t *testing.T) {
	Initialize("info", true)

	components := map[string]*zerolog.Logger{
		"security": Security(), "websocket": WebSocket(), "processor": Processor(),
		"gate": Gate(), "events": Events(), "queue": Queue(),
		"stages": Stages(), "database": Database(), "http": HTTP(),
	}
	for name, l := range components {
		assert.NotNil(t, l, "component %s", name)
	}
}
