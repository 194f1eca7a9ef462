package synthetic

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/colorconv"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/engine"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"nv12 default", Config{Width: 64, Height: 48}, false},
		{"rgb", Config{Width: 63, Height: 47, Format: "rgb"}, false},
		{"zero size", Config{}, true},
		{"odd nv12", Config{Width: 63, Height: 48}, true},
		{"unknown format", Config{Width: 64, Height: 48, Format: "I420"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEngine_GeneratesFramesUntilEOS(t *testing.T) {
	e, err := New(Config{Width: 16, Height: 8, FPS: 200, Frames: 5})
	require.NoError(t, err)

	var mu sync.Mutex
	var sizes []int
	eos := make(chan struct{})
	prerolled := false

	require.NoError(t, e.SetCallbacks(engine.Callbacks{
		OnSample: func(s engine.Sample) {
			mu.Lock()
			sizes = append(sizes, len(s.Data))
			mu.Unlock()
			assert.Equal(t, 16, s.Width)
			assert.Equal(t, FormatNV12, s.Format)
		},
		OnPreroll: func() { prerolled = true },
		OnEOS:     func() { close(eos) },
	}))

	change, err := e.RequestPlaying()
	require.NoError(t, err)
	assert.Equal(t, engine.StateChangeAsync, change)

	select {
	case <-eos:
	case <-time.After(2 * time.Second):
		t.Fatal("no end-of-stream")
	}

	require.NoError(t, e.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, prerolled)
	assert.Len(t, sizes, 5)
	for _, n := range sizes {
		assert.Equal(t, colorconv.NV12Size(16, 8), n)
	}

	var kinds []engine.MessageKind
	for {
		msg, ok := e.PopMessage()
		if !ok {
			break
		}
		kinds = append(kinds, msg.Kind)
	}
	assert.Contains(t, kinds, engine.MessageEOS)
	assert.Contains(t, kinds, engine.MessageStateChanged)
}

func TestEngine_PushIsSynchronous(t *testing.T) {
	e, err := New(Config{Width: 4, Height: 4})
	require.NoError(t, err)

	var got engine.Sample
	require.NoError(t, e.SetCallbacks(engine.Callbacks{
		OnSample: func(s engine.Sample) { got = s },
	}))

	e.Push([]byte{1, 2, 3}, 1, 1)
	assert.Equal(t, []byte{1, 2, 3}, got.Data)
	assert.Equal(t, 1, got.Width)
}

func TestEngine_ClosedCannotPlay(t *testing.T) {
	e, err := New(Config{Width: 4, Height: 4})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	_, err = e.RequestPlaying()
	assert.Error(t, err)
}
