package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/agrinav-robotics/rowfollow/internal/row"
)

// Runtime owns the frame loop. Frames arrive via Submit into a
// capacity-1 mailbox; when inference for one frame has not finished
// before the next arrives, the unserviced stale frame is replaced
// rather than queued, bounding navigation latency. A single consumer
// goroutine processes frames, so estimates reach the sink in scan
// arrival order.
type Runtime struct {
	engine *Engine
	sink   EstimateSink

	mailbox chan row.Frame
	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewRuntime wires an engine to a sink.
func NewRuntime(engine *Engine, sink EstimateSink) *Runtime {
	return &Runtime{
		engine:  engine,
		sink:    sink,
		mailbox: make(chan row.Frame, 1),
	}
}

// Submit offers a frame to the loop without blocking the sensor path.
// If the mailbox already holds an unserviced frame, that stale frame is
// dropped in favour of the fresh one.
func (r *Runtime) Submit(frame row.Frame) {
	for {
		select {
		case r.mailbox <- frame:
			return
		default:
		}
		select {
		case stale := <-r.mailbox:
			n := r.dropped.Add(1)
			if n%50 == 1 {
				row.Diagf("[Runtime] Dropped stale frame %s (%d dropped total)", stale.ID, n)
			}
		default:
		}
	}
}

// Dropped returns the number of stale frames discarded so far.
func (r *Runtime) Dropped() uint64 {
	return r.dropped.Load()
}

// Run consumes frames until ctx is cancelled. Per-frame failures are
// logged and published as unavailable estimates; they never stop the
// loop.
func (r *Runtime) Run(ctx context.Context) {
	row.Opsf("[Runtime] Frame loop started")
	for {
		select {
		case <-ctx.Done():
			row.Opsf("[Runtime] Frame loop stopped (%d frames dropped)", r.Dropped())
			return
		case frame := <-r.mailbox:
			res := r.engine.ProcessFrame(frame, r.seq.Add(1))
			if res.Err != nil {
				row.Opsf("[Runtime] %v", res.Err)
			}
			if r.sink != nil {
				r.sink.PublishEstimate(res)
			}
		}
	}
}
