// Package synthetic provides an engine.Engine that generates moving test
// patterns on a ticker. It needs no media framework and is used by the
// command's --synthetic mode and by tests.
package synthetic

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/colorconv"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/engine"
)

// Pixel formats produced by the engine.
const (
	FormatNV12 = "NV12"
	FormatRGB  = "RGB"
)

// Config describes the generated stream.
type Config struct {
	Width  int
	Height int
	Format string  // FormatNV12 (default) or FormatRGB
	FPS    float64 // default 30
	Frames int     // frames before end-of-stream; 0 = unlimited
}

// Engine generates frames while playing.
type Engine struct {
	cfg Config

	mu        sync.Mutex
	callbacks engine.Callbacks
	messages  []engine.Message
	playing   bool
	closed    bool
	stop      chan struct{}
	wg        sync.WaitGroup

	// sampleMu keeps OnSample invocations non-overlapping across the
	// ticker goroutine and Push.
	sampleMu sync.Mutex
	frame    int
}

var _ engine.Engine = (*Engine)(nil)

// New validates cfg and creates a stopped engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("synthetic: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Format == "" {
		cfg.Format = FormatNV12
	}
	cfg.Format = strings.ToUpper(cfg.Format)
	if cfg.Format != FormatNV12 && cfg.Format != FormatRGB {
		return nil, fmt.Errorf("synthetic: unsupported format %q (want NV12 or RGB)", cfg.Format)
	}
	if cfg.Format == FormatNV12 && (cfg.Width%2 != 0 || cfg.Height%2 != 0) {
		return nil, fmt.Errorf("synthetic: NV12 needs even dimensions, got %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	return &Engine{cfg: cfg}, nil
}

// SetCallbacks implements engine.Engine.
func (e *Engine) SetCallbacks(cb engine.Callbacks) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks = cb
	return nil
}

// RequestPlaying starts the generator. Returns async like a live source.
func (e *Engine) RequestPlaying() (engine.StateChange, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return engine.StateChangeSuccess, fmt.Errorf("synthetic: engine closed")
	}
	if e.playing {
		return engine.StateChangeSuccess, nil
	}

	e.playing = true
	e.stop = make(chan struct{})
	e.pushLocked(engine.Message{Kind: engine.MessageStateChanged, Source: "synthetic", Text: "NULL -> PLAYING"})

	e.wg.Add(1)
	go e.run(e.stop)

	slog.Debug("synthetic: playing",
		"width", e.cfg.Width,
		"height", e.cfg.Height,
		"format", e.cfg.Format,
		"fps", e.cfg.FPS,
	)
	return engine.StateChangeAsync, nil
}

// RequestStopped stops the generator and waits for it to exit.
func (e *Engine) RequestStopped() (engine.StateChange, error) {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return engine.StateChangeSuccess, nil
	}
	e.playing = false
	close(e.stop)
	e.pushLocked(engine.Message{Kind: engine.MessageStateChanged, Source: "synthetic", Text: "PLAYING -> NULL"})
	e.mu.Unlock()

	e.wg.Wait()
	return engine.StateChangeSuccess, nil
}

// PopMessage implements engine.Engine.
func (e *Engine) PopMessage() (engine.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.messages) == 0 {
		return engine.Message{}, false
	}
	msg := e.messages[0]
	e.messages = e.messages[1:]
	return msg, true
}

// Post queues a bus message, as an element of a real graph would.
func (e *Engine) Post(msg engine.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pushLocked(msg)
}

func (e *Engine) pushLocked(msg engine.Message) {
	e.messages = append(e.messages, msg)
}

// Push delivers one caller-provided buffer through OnSample synchronously,
// whether or not the generator is running.
func (e *Engine) Push(data []byte, width, height int) {
	e.sampleMu.Lock()
	defer e.sampleMu.Unlock()

	e.mu.Lock()
	cb := e.callbacks.OnSample
	e.mu.Unlock()

	if cb != nil {
		cb(engine.Sample{Data: data, Width: width, Height: height, Format: e.cfg.Format})
	}
}

// Close stops the generator. The engine cannot be restarted.
func (e *Engine) Close() error {
	if _, err := e.RequestStopped(); err != nil {
		return err
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) run(stop <-chan struct{}) {
	defer e.wg.Done()

	interval := time.Duration(float64(time.Second) / e.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	buf := make([]byte, e.frameSize())

	e.mu.Lock()
	preroll := e.callbacks.OnPreroll
	e.mu.Unlock()
	if preroll != nil {
		preroll()
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if !e.emit(buf) {
			e.mu.Lock()
			e.pushLocked(engine.Message{Kind: engine.MessageEOS, Source: "synthetic"})
			eos := e.callbacks.OnEOS
			e.mu.Unlock()
			if eos != nil {
				eos()
			}
			return
		}
	}
}

// emit renders and delivers the next frame. Returns false once the frame
// budget is exhausted.
func (e *Engine) emit(buf []byte) bool {
	e.sampleMu.Lock()
	defer e.sampleMu.Unlock()

	if e.cfg.Frames > 0 && e.frame >= e.cfg.Frames {
		return false
	}

	e.render(buf, e.frame)
	e.frame++

	e.mu.Lock()
	cb := e.callbacks.OnSample
	e.mu.Unlock()

	if cb != nil {
		cb(engine.Sample{Data: buf, Width: e.cfg.Width, Height: e.cfg.Height, Format: e.cfg.Format})
	}
	return true
}

func (e *Engine) frameSize() int {
	if e.cfg.Format == FormatNV12 {
		return colorconv.NV12Size(e.cfg.Width, e.cfg.Height)
	}
	return colorconv.RGB8Size(e.cfg.Width, e.cfg.Height)
}

// render draws a diagonal gradient that scrolls one pixel per frame.
func (e *Engine) render(buf []byte, n int) {
	w, h := e.cfg.Width, e.cfg.Height

	if e.cfg.Format == FormatNV12 {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				buf[y*w+x] = byte(x + y + n)
			}
		}
		uv := buf[w*h:]
		for y := 0; y < h/2; y++ {
			for x := 0; x < w; x += 2 {
				uv[y*w+x] = byte(128 + (x+n)%64)
				uv[y*w+x+1] = byte(128 - (y+n)%64)
			}
		}
		return
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			buf[i] = byte(x + n)
			buf[i+1] = byte(y + n)
			buf[i+2] = byte(x + y)
		}
	}
}
