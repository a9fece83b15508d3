package presence

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultEmitWindow bounds how often a local typing-start signal goes out,
// and doubles as the idle timeout after which a stop signal is emitted
// automatically.
const DefaultEmitWindow = 2 * time.Second

// Emitter rate-limits local typing signals. Input is called on every local
// keystroke; a start signal is emitted at most once per window, and a stop
// signal fires once input goes idle for the same window.
type Emitter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	idle    *time.Timer
	window  time.Duration
	started bool
	emit    func(active bool)
}

func NewEmitter(window time.Duration, emit func(active bool)) *Emitter {
	if window <= 0 {
		window = DefaultEmitWindow
	}
	return &Emitter{
		limiter: rate.NewLimiter(rate.Every(window), 1),
		window:  window,
		emit:    emit,
	}
}

func (e *Emitter) Input() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.limiter.Allow() {
		e.started = true
		e.emit(true)
	}

	if e.idle != nil {
		e.idle.Stop()
	}
	e.idle = time.AfterFunc(e.window, e.stop)
}

func (e *Emitter) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return
	}
	e.started = false
	e.emit(false)
}

// Close cancels the idle timer and emits a final stop if one is pending.
// Safe to call more than once.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.idle != nil {
		e.idle.Stop()
		e.idle = nil
	}
	started := e.started
	e.started = false
	e.mu.Unlock()

	if started {
		e.emit(false)
	}
}
