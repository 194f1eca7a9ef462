package convert

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/colorconv"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/pool"
)

// flakyKernels wraps the CPU kernels and fails while fail is set.
type flakyKernels struct {
	colorconv.CPU
	fail bool
}

var errLaunch = errors.New("kernel launch failed")

func (f *flakyKernels) NV12ToRGBA32(src, dst device.Ptr, w, h int) error {
	if f.fail {
		return errLaunch
	}
	return f.CPU.NV12ToRGBA32(src, dst, w, h)
}

func (f *flakyKernels) RGB8ToRGBA32(src, dst device.Ptr, w, h int) error {
	if f.fail {
		return errLaunch
	}
	return f.CPU.RGB8ToRGBA32(src, dst, w, h)
}

func rawNV12(w, h int) (device.Ptr, frame.Format) {
	data := make([]byte, colorconv.NV12Size(w, h))
	for i := range data {
		data[i] = byte(i)
	}
	return unsafe.Pointer(&data[0]), frame.Negotiate(w, h, len(data))
}

func TestConvert_ZeroCopyExposesPixels(t *testing.T) {
	s := New(device.NewHostAllocator(0), 4, colorconv.CPU{})
	defer s.Release()

	src, format := rawNV12(8, 4)
	out, err := s.Convert(src, format, true, frame.Meta{Seq: 9})
	require.NoError(t, err)

	assert.True(t, out.ZeroCopy)
	assert.NotNil(t, out.Device)
	require.Len(t, out.Pixels, 8*4*4)
	assert.Equal(t, device.Ptr(&out.Pixels[0]), out.Device)
	assert.EqualValues(t, 9, out.Seq)
	for _, v := range out.Pixels {
		assert.True(t, v >= 0 && v <= 255)
	}

	stats := s.Stats()
	assert.EqualValues(t, 1, stats.NV12)
	assert.Zero(t, stats.RGB8)
}

func TestConvert_DeviceOnlyHasNoHostView(t *testing.T) {
	s := New(device.NewHostAllocator(0), 4, colorconv.CPU{})
	defer s.Release()

	src, format := rawNV12(8, 4)
	out, err := s.Convert(src, format, false, frame.Meta{})
	require.NoError(t, err)

	assert.NotNil(t, out.Device)
	assert.Nil(t, out.Pixels)
	assert.False(t, out.ZeroCopy)
}

func TestConvert_RoundRobin(t *testing.T) {
	s := New(device.NewHostAllocator(0), 3, colorconv.CPU{})
	defer s.Release()

	src, format := rawNV12(4, 4)
	var got []int
	for i := 0; i < 5; i++ {
		out, err := s.Convert(src, format, true, frame.Meta{})
		require.NoError(t, err)
		got = append(got, out.Index)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1}, got)
}

func TestConvert_ModeSwitchReallocatesOncePerTransition(t *testing.T) {
	alloc := device.NewHostAllocator(0)
	s := New(alloc, 16, colorconv.CPU{})
	defer s.Release()

	src, format := rawNV12(4, 4)
	sequence := []bool{true, true, false, false, true}
	for _, zc := range sequence {
		_, err := s.Convert(src, format, zc, frame.Meta{})
		require.NoError(t, err)
	}

	allocs, frees := alloc.Counts()
	assert.EqualValues(t, 16*3, allocs, "initial + two transitions")
	assert.EqualValues(t, 16*2, frees)

	buffers, _ := alloc.Live()
	assert.Equal(t, 16, buffers, "prior allocation must not leak")
	assert.EqualValues(t, 2, s.Stats().Pool.Reconfigures)
}

func TestConvert_KernelFailureLeavesPoolIntact(t *testing.T) {
	alloc := device.NewHostAllocator(0)
	k := &flakyKernels{}
	s := New(alloc, 4, k)
	defer s.Release()

	src, format := rawNV12(4, 4)

	first, err := s.Convert(src, format, true, frame.Meta{})
	require.NoError(t, err)

	k.fail = true
	_, err = s.Convert(src, format, true, frame.Meta{})
	require.ErrorIs(t, err, ErrConversion)
	assert.ErrorIs(t, err, errLaunch)

	allocsBefore, _ := alloc.Counts()

	k.fail = false
	next, err := s.Convert(src, format, true, frame.Meta{})
	require.NoError(t, err)
	assert.Equal(t, first.Index+1, next.Index, "failed call must not advance the index")

	allocsAfter, _ := alloc.Counts()
	assert.Equal(t, allocsBefore, allocsAfter)
	assert.EqualValues(t, 1, s.Stats().Failed)
}

func TestConvert_RejectsUnusableInput(t *testing.T) {
	s := New(device.NewHostAllocator(0), 2, colorconv.CPU{})
	defer s.Release()

	src, format := rawNV12(4, 4)

	_, err := s.Convert(nil, format, true, frame.Meta{})
	assert.ErrorIs(t, err, ErrConversion)

	_, err = s.Convert(src, frame.Format{}, true, frame.Meta{})
	assert.ErrorIs(t, err, ErrConversion)

	gray := frame.Negotiate(4, 4, 16) // 8bpp would overrun the RGB8 kernel
	_, err = s.Convert(src, gray, true, frame.Meta{})
	assert.ErrorIs(t, err, ErrConversion)
}

func TestConvert_AllocationFailure(t *testing.T) {
	s := New(device.NewHostAllocator(100), 2, colorconv.CPU{})
	defer s.Release()

	src, format := rawNV12(4, 4)
	_, err := s.Convert(src, format, false, frame.Meta{})
	assert.ErrorIs(t, err, pool.ErrAllocation)
}

// opaqueAllocator hands out host memory but hides host addressability of
// device-only buffers, like cudaMalloc does.
type opaqueAllocator struct {
	*device.HostAllocator
}

type opaqueBuffer struct {
	device.Buffer
}

func (a opaqueAllocator) Alloc(size int, mode device.Mode) (device.Buffer, error) {
	b, err := a.HostAllocator.Alloc(size, mode)
	if err != nil {
		return nil, err
	}
	return opaqueBuffer{b}, nil
}

// countingKernels counts calls so tests can assert a kernel never ran.
type countingKernels struct {
	colorconv.CPU
	calls int
}

func (k *countingKernels) NV12ToRGBA32(src, dst device.Ptr, w, h int) error {
	k.calls++
	return k.CPU.NV12ToRGBA32(src, dst, w, h)
}

func (k *countingKernels) RGB8ToRGBA32(src, dst device.Ptr, w, h int) error {
	k.calls++
	return k.CPU.RGB8ToRGBA32(src, dst, w, h)
}

func TestConvert_HostKernelsRefuseUnaddressableSlots(t *testing.T) {
	k := &countingKernels{}
	s := New(opaqueAllocator{device.NewHostAllocator(0)}, 2, k)
	defer s.Release()

	src, format := rawNV12(8, 4)

	_, err := s.Convert(src, format, false, frame.Meta{})
	require.ErrorIs(t, err, ErrConversion)
	assert.ErrorIs(t, err, colorconv.ErrInvalidArgument)
	assert.Zero(t, k.calls, "kernel must not touch device-only memory")
	t.Logf("device-only slot refused: %v", err)

	out, err := s.Convert(src, format, true, frame.Meta{})
	require.NoError(t, err, "mapped slots stay usable")
	assert.Equal(t, 0, out.Index)
	assert.Equal(t, 1, k.calls)

	stats := s.Stats()
	assert.EqualValues(t, 1, stats.Failed)
	assert.EqualValues(t, 1, stats.Converted)
}

func TestConvert_HostAllocatorDeviceSlotsStayConvertible(t *testing.T) {
	k := &countingKernels{}
	s := New(device.NewHostAllocator(0), 2, k)
	defer s.Release()

	src, format := rawNV12(8, 4)
	_, err := s.Convert(src, format, false, frame.Meta{})
	require.NoError(t, err)
	assert.Equal(t, 1, k.calls)
}
