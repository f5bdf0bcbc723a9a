package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tabdulradi/pan-tut/internal/config"
)

func TestNewNATSPublisher_Disabled_ReturnsError(t *testing.T) {
	_, err := NewNATSPublisher(config.EventsConfig{Enabled: false})
	require.Error(t, err)
}

func TestEvent_MarshalsExpectedFields(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	event := Event{
		Type:      EventBuildFailed,
		BuildID:   "b-1",
		Stage:     "convert",
		Error:     "exit status 1",
		Timestamp: ts,
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "build.failed", decoded["type"])
	require.Equal(t, "b-1", decoded["build_id"])
	require.Equal(t, "convert", decoded["stage"])
	require.Equal(t, "exit status 1", decoded["error"])
}

func TestNoopPublisher_SafeToCall(t *testing.T) {
	var p Publisher = NoopPublisher{}
	p.Publish(Event{Type: EventBuildStarted, BuildID: "b-1"})
	p.Close()
}
