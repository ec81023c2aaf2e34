// Package pipeline is the composition root of the row perception
// pipeline: it wires preprocessing, labelling and extraction into a
// per-frame engine and a drop-stale frame loop. It imports the layer
// packages (points, shellnet, extract); none of them import pipeline.
package pipeline

import (
	"math/rand"
	"time"

	"github.com/agrinav-robotics/rowfollow/internal/row/extract"
	"github.com/agrinav-robotics/rowfollow/internal/row/points"
)

// Sampler normalises a raw scan into the fixed-size point set.
// *points.Preprocessor is the production implementation.
type Sampler interface {
	Sample(scan points.RawScan, rng *rand.Rand) (points.SampledPointSet, error)
}

// Labeler assigns one class index per sampled point.
// *shellnet.Model is the production implementation.
type Labeler interface {
	Label(pts points.SampledPointSet) ([]int, error)
}

// RowFitter turns aligned points and labels into a row estimate.
// *extract.Extractor is the production implementation.
type RowFitter interface {
	Extract(pts points.SampledPointSet, labels []int) (extract.Estimate, error)
}

// EstimateSink receives one FrameResult per processed frame, in scan
// arrival order. The navigation consumer sits behind this interface.
type EstimateSink interface {
	PublishEstimate(res FrameResult)
}

// EstimateStore persists per-frame estimates for offline evaluation.
// Implementations live outside the domain layers (storage/sqlite).
type EstimateStore interface {
	InsertEstimate(frameID string, stamp time.Time, est extract.Estimate) error
}

// FrameResult is the pipeline's per-frame output. When Err is non-nil
// the frame failed (input or inference error) and Estimate is
// meaningless: the tick's estimate is simply unavailable. A valid
// result with Estimate.Valid == false is NoRowDetected: a real answer,
// not a failure.
type FrameResult struct {
	FrameID  string
	Stamp    time.Time
	Seq      uint64
	Estimate extract.Estimate
	Err      error
}
