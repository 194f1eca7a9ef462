package emitter

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/config"
)

type sample struct {
	State    string            `json:"state"`
	Frames   uint64            `json:"frames_ingested"`
	BusError map[string]uint64 `json:"bus_errors"`
}

func TestEncode_JSON(t *testing.T) {
	in := sample{State: "streaming", Frames: 42, BusError: map[string]uint64{"network": 1}}

	for _, enc := range []string{"", "json"} {
		data, err := Encode(in, enc)
		require.NoError(t, err)

		var out map[string]any
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, "streaming", out["state"])
		assert.EqualValues(t, 42, out["frames_ingested"])
	}
}

func TestEncode_MsgpackUsesJSONNames(t *testing.T) {
	in := sample{State: "streaming", Frames: 42, BusError: map[string]uint64{"codec": 3}}

	data, err := Encode(in, "msgpack")
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, msgpack.Unmarshal(data, &out))
	assert.Contains(t, out, "state")
	assert.Contains(t, out, "frames_ingested")
	assert.NotContains(t, out, "Frames")

	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	var back sample
	require.NoError(t, dec.Decode(&back))
	assert.Equal(t, in, back)
}

func TestEncode_UnknownEncoding(t *testing.T) {
	_, err := Encode(sample{}, "xml")
	assert.Error(t, err)
}

func TestPublish_NotConnected(t *testing.T) {
	e := NewMQTTEmitter(config.Default().MQTT)

	err := e.Publish(sample{})
	assert.ErrorIs(t, err, ErrNotConnected)
	err = e.PublishHealth(map[string]string{"status": "ok"})
	assert.ErrorIs(t, err, ErrNotConnected)

	stats := e.Stats()
	assert.False(t, stats.Connected)
	assert.EqualValues(t, 2, stats.Errors)
	assert.Empty(t, stats.Published)

	e.Disconnect()
}

func TestPublish_EncodeFailureCounted(t *testing.T) {
	cfg := config.Default().MQTT
	e := NewMQTTEmitter(cfg)

	err := e.Publish(make(chan int))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotConnected)
	assert.EqualValues(t, 1, e.Stats().Errors)
}
