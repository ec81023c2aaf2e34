package pipeline

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/agrinav-robotics/rowfollow/internal/row"
)

// EngineConfig holds the engine's stage implementations and tunables.
type EngineConfig struct {
	Sampler Sampler
	Labeler Labeler
	Fitter  RowFitter

	// Store, when non-nil, receives every successful estimate. Store
	// failures are logged, never escalated to frame failures.
	Store EstimateStore

	// Seed determines the per-frame sampling rng. A fixed seed makes the
	// whole pipeline reproducible for a given frame sequence.
	Seed int64
}

// Engine runs one frame synchronously through sampling, labelling and
// extraction. The model weights behind Labeler are immutable, so an
// Engine is safe for concurrent use; the Runtime nonetheless feeds it
// from a single goroutine to keep emission ordered.
type Engine struct {
	cfg EngineConfig
}

// NewEngine validates the stage wiring and returns an engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Sampler == nil || cfg.Labeler == nil || cfg.Fitter == nil {
		return nil, fmt.Errorf("engine: sampler, labeler and fitter are all required")
	}
	return &Engine{cfg: cfg}, nil
}

// frameSeedMix decorrelates per-frame rng streams drawn from one seed.
const frameSeedMix = 0x9e3779b97f4a7c15

// ProcessFrame runs the full per-frame computation. Errors are per-frame:
// the caller logs, discards the frame, and keeps the loop running.
func (e *Engine) ProcessFrame(frame row.Frame, seq uint64) FrameResult {
	res := FrameResult{FrameID: frame.ID, Stamp: frame.Stamp, Seq: seq}

	rng := rand.New(rand.NewSource(e.cfg.Seed ^ int64(seq*frameSeedMix)))

	sampled, err := e.cfg.Sampler.Sample(frame.Points, rng)
	if err != nil {
		res.Err = fmt.Errorf("frame %s: %w", frame.ID, err)
		return res
	}

	labels, err := e.cfg.Labeler.Label(sampled)
	if err != nil {
		res.Err = fmt.Errorf("frame %s: label: %w", frame.ID, err)
		return res
	}

	est, err := e.cfg.Fitter.Extract(sampled, labels)
	if err != nil {
		res.Err = fmt.Errorf("frame %s: extract: %w", frame.ID, err)
		return res
	}
	res.Estimate = est

	if est.Valid {
		row.Tracef("[Engine] Frame %s: heading=%.2f° offset=%.2fm conf=%.2f (%d row points)",
			frame.ID, est.HeadingRad*180/math.Pi, est.LateralOffsetM, est.Confidence, est.RowPointCount)
	} else {
		row.Tracef("[Engine] Frame %s: no row detected (%s, %d row points)",
			frame.ID, est.Reason, est.RowPointCount)
	}

	if e.cfg.Store != nil {
		if err := e.cfg.Store.InsertEstimate(frame.ID, frame.Stamp, est); err != nil {
			row.Opsf("[Engine] Failed to persist estimate for frame %s: %v", frame.ID, err)
		}
	}
	return res
}
