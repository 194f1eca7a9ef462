package device_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"
)

func TestHostAllocator_MappedSharesOneAllocation(t *testing.T) {
	alloc := device.NewHostAllocator(0)

	buf, err := alloc.Alloc(64, device.ModeMapped)
	require.NoError(t, err)

	host := buf.Host()
	require.Len(t, host, 64)
	assert.Equal(t, device.Ptr(&host[0]), buf.Device(), "host and device views must alias")

	buffers, bytes := alloc.Live()
	assert.Equal(t, 1, buffers)
	assert.EqualValues(t, 64, bytes)
}

func TestHostAllocator_DeviceOnlyHidesHost(t *testing.T) {
	alloc := device.NewHostAllocator(0)

	buf, err := alloc.Alloc(32, device.ModeDevice)
	require.NoError(t, err)

	assert.Nil(t, buf.Host())
	assert.NotNil(t, buf.Device())
	assert.Equal(t, 32, buf.Size())
	assert.Equal(t, device.ModeDevice, buf.Mode())
}

func TestHostAllocator_FreeExactlyOnce(t *testing.T) {
	alloc := device.NewHostAllocator(0)

	buf, err := alloc.Alloc(16, device.ModeMapped)
	require.NoError(t, err)

	require.NoError(t, buf.Free())
	assert.ErrorIs(t, buf.Free(), device.ErrFreed)
	assert.Nil(t, buf.Device())

	buffers, bytes := alloc.Live()
	assert.Zero(t, buffers)
	assert.Zero(t, bytes)

	allocs, frees := alloc.Counts()
	assert.EqualValues(t, 1, allocs)
	assert.EqualValues(t, 1, frees)
}

func TestHostAllocator_Limit(t *testing.T) {
	alloc := device.NewHostAllocator(100)

	_, err := alloc.Alloc(60, device.ModeMapped)
	require.NoError(t, err)

	_, err = alloc.Alloc(60, device.ModeDevice)
	assert.ErrorIs(t, err, device.ErrOutOfMemory)

	_, err = alloc.Alloc(0, device.ModeDevice)
	assert.ErrorIs(t, err, device.ErrInvalidSize)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "mapped", device.ModeMapped.String())
	assert.Equal(t, "device", device.ModeDevice.String())
	assert.Equal(t, "unknown", device.Mode(42).String())
}

type wrappedBuffer struct {
	device.Buffer
}

func TestHostAddressable(t *testing.T) {
	alloc := device.NewHostAllocator(0)

	mapped, err := alloc.Alloc(16, device.ModeMapped)
	require.NoError(t, err)
	deviceOnly, err := alloc.Alloc(16, device.ModeDevice)
	require.NoError(t, err)

	tests := []struct {
		name string
		buf  device.Buffer
		want bool
	}{
		{"host mapped", mapped, true},
		{"host device-only is still Go memory", deviceOnly, true},
		{"foreign mapped", wrappedBuffer{mapped}, true},
		{"foreign device-only", wrappedBuffer{deviceOnly}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, device.HostAddressable(tt.buf))
		})
	}
}
