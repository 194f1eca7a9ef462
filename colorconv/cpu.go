package colorconv

import (
	"fmt"
	"image/color"
	"runtime"
	"sync"
	"unsafe"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/device"
)

// CPU is the reference implementation of Kernels. It operates on memory the
// host can address, which holds for device.HostAllocator buffers and for
// CUDA mapped buffers. Rows are split across GOMAXPROCS goroutines.
type CPU struct {
	// Workers caps the number of goroutines; 0 means GOMAXPROCS.
	Workers int
}

var (
	_ Kernels    = CPU{}
	_ HostMemory = CPU{}
)

// HostMemoryOnly is always true: CPU kernels write dst through a Go slice.
func (CPU) HostMemoryOnly() bool { return true }

// NV12ToRGBA32 converts a BT.601 full-range NV12 frame.
func (c CPU) NV12ToRGBA32(src, dst device.Ptr, width, height int) error {
	if err := checkArgs(src, dst, width, height); err != nil {
		return err
	}

	in := unsafe.Slice((*byte)(src), NV12Size(width, height))
	out := unsafe.Slice((*float32)(dst), width*height*4)

	yPlane := in[:width*height]
	uvPlane := in[width*height:]
	stride := uvStride(width)

	c.rows(height, func(y int) {
		uvRow := uvPlane[(y/2)*stride:]
		for x := 0; x < width; x++ {
			luma := yPlane[y*width+x]
			cb := uvRow[x&^1]
			cr := uvRow[x&^1+1]
			r, g, b := color.YCbCrToRGB(luma, cb, cr)
			putPixel(out, y*width+x, r, g, b)
		}
	})
	return nil
}

// RGB8ToRGBA32 expands packed RGB to float RGBA.
func (c CPU) RGB8ToRGBA32(src, dst device.Ptr, width, height int) error {
	if err := checkArgs(src, dst, width, height); err != nil {
		return err
	}

	in := unsafe.Slice((*byte)(src), RGB8Size(width, height))
	out := unsafe.Slice((*float32)(dst), width*height*4)

	c.rows(height, func(y int) {
		for x := 0; x < width; x++ {
			i := y*width + x
			putPixel(out, i, in[i*3], in[i*3+1], in[i*3+2])
		}
	})
	return nil
}

func (c CPU) rows(height int, fn func(y int)) {
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > height {
		workers = height
	}

	var wg sync.WaitGroup
	chunk := (height + workers - 1) / workers
	for start := 0; start < height; start += chunk {
		end := start + chunk
		if end > height {
			end = height
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				fn(y)
			}
		}(start, end)
	}
	wg.Wait()
}

func putPixel(out []float32, i int, r, g, b uint8) {
	out[i*4+0] = float32(r)
	out[i*4+1] = float32(g)
	out[i*4+2] = float32(b)
	out[i*4+3] = 255
}

func checkArgs(src, dst device.Ptr, width, height int) error {
	if src == nil || dst == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidArgument)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidArgument, width, height)
	}
	return nil
}
