// Package extract turns per-point class labels into a navigable row
// estimate: the heading and lateral offset of the crop row's centerline
// relative to the vehicle, with a confidence derived from supporting
// evidence. NoRowDetected is a valid outcome, not an error.
package extract

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/agrinav-robotics/rowfollow/internal/row/points"
)

// Params are the extractor's tunables. The minimum-support threshold
// and degeneracy bounds are deployment configuration, not model state.
type Params struct {
	// RowClass is the class index meaning "traversable row".
	RowClass int
	// MinRowPoints is the minimum number of row-labelled points required
	// to attempt a fit. Below it the frame yields NoRowDetected. Values
	// under 2 are treated as 2; a line fit needs two points.
	MinRowPoints int
	// FullSupportPoints is the count at which the support term of the
	// confidence saturates at 1.
	FullSupportPoints int
	// MinAnisotropy is the minimum principal/secondary eigenvalue ratio
	// of the ground-plane covariance. Below it the point spread is too
	// blob-like for a stable line fit.
	MinAnisotropy float64
	// MaxHeadingDeg rejects fits whose heading is closer than
	// (90 - MaxHeadingDeg) degrees to the lateral axis. A row running
	// nearly perpendicular to the vehicle cannot be followed.
	MaxHeadingDeg float64
	// ResidualScaleM controls how quickly confidence decays with the RMS
	// perpendicular spread around the fitted line.
	ResidualScaleM float64
}

// DefaultParams returns the tuned defaults for a 1024-point sampled set.
func DefaultParams() Params {
	return Params{
		RowClass:          1,
		MinRowPoints:      30,
		FullSupportPoints: 200,
		MinAnisotropy:     4.0,
		MaxHeadingDeg:     75.0,
		ResidualScaleM:    0.2,
	}
}

// Estimate is the per-frame row geometry handed to navigation.
// When Valid is false the frame carries no usable row (NoRowDetected)
// and Reason says why.
type Estimate struct {
	Valid  bool
	Reason string

	// HeadingRad is the row direction relative to the vehicle forward
	// axis (+X), normalised to (-pi/2, pi/2]. Positive turns left.
	HeadingRad float64
	// LateralOffsetM is the signed perpendicular distance from the
	// vehicle origin to the row centerline. Positive means the line
	// passes to the vehicle's left.
	LateralOffsetM float64
	// Confidence in [0,1], from support count and residual spread.
	Confidence float64
	// RowPointCount is the number of row-labelled points used.
	RowPointCount int
	// ResidualRMS is the RMS perpendicular spread around the fit (m).
	ResidualRMS float64
}

// noRow builds the explicit negative result.
func noRow(count int, reason string) Estimate {
	return Estimate{Valid: false, Reason: reason, RowPointCount: count}
}

// canonicalHeading maps a line direction to (-pi/2, pi/2]. A direction
// and its negation describe the same line, so the representative with
// dx > 0 is chosen; a vertical line maps to +pi/2, never -pi/2.
func canonicalHeading(dx, dy float64) float64 {
	if dx < 0 || (dx == 0 && dy < 0) {
		dx, dy = -dx, -dy
	}
	return math.Atan2(dy, dx)
}

// Extractor fits a row centerline through row-labelled points.
type Extractor struct {
	params Params
}

// NewExtractor builds an extractor with the given parameters.
func NewExtractor(p Params) *Extractor {
	return &Extractor{params: p}
}

// Params returns the extractor's current parameters.
func (e *Extractor) Params() Params { return e.params }

// Extract selects the row-labelled points of one frame and fits their
// ground-plane projection with a principal-axis line. pts and labels
// must be index-aligned.
//
// The fit is total least squares: the 2x2 covariance of the XY
// projection is eigendecomposed and the principal axis gives the row
// direction, so the result does not depend on which axis the row runs
// along. The secondary eigenvalue is the squared RMS perpendicular
// residual for free.
func (e *Extractor) Extract(pts points.SampledPointSet, labels []int) (Estimate, error) {
	if len(pts) != len(labels) {
		return Estimate{}, fmt.Errorf("extract: %d points for %d labels", len(pts), len(labels))
	}

	var xs, ys []float64
	for i, l := range labels {
		if l == e.params.RowClass {
			xs = append(xs, pts[i].X)
			ys = append(ys, pts[i].Y)
		}
	}
	count := len(xs)
	// Two points are the floor for a line fit regardless of how low the
	// configured threshold is; below that the covariance is undefined.
	minSupport := e.params.MinRowPoints
	if minSupport < 2 {
		minSupport = 2
	}
	if count < minSupport {
		return noRow(count, "insufficient support"), nil
	}

	data := mat.NewDense(count, 2, nil)
	for i := range xs {
		data.Set(i, 0, xs[i])
		data.Set(i, 1, ys[i])
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var es mat.EigenSym
	if !es.Factorize(&cov, true) {
		return noRow(count, "covariance factorization failed"), nil
	}
	vals := es.Values(nil) // ascending
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	const tiny = 1e-12
	major, minor := vals[1], vals[0]
	if minor < 0 {
		minor = 0
	}
	if major < tiny {
		return noRow(count, "points nearly coincident"), nil
	}
	if major/(minor+tiny) < e.params.MinAnisotropy {
		return noRow(count, "point spread too isotropic for a line fit"), nil
	}

	heading := canonicalHeading(vecs.At(0, 1), vecs.At(1, 1))
	if math.Abs(heading) > e.params.MaxHeadingDeg*math.Pi/180 {
		return noRow(count, "row nearly perpendicular to the forward axis"), nil
	}

	cx := stat.Mean(xs, nil)
	cy := stat.Mean(ys, nil)
	// Unit normal of the line, pointing left of the canonical direction.
	dx, dy := math.Cos(heading), math.Sin(heading)
	nx, ny := -dy, dx
	offset := cx*nx + cy*ny

	residual := math.Sqrt(minor)
	support := float64(count) / float64(e.params.FullSupportPoints)
	if support > 1 {
		support = 1
	}
	confidence := support * math.Exp(-residual/e.params.ResidualScaleM)

	// Non-finite input coordinates can leak NaN through the covariance
	// without tripping any threshold above (NaN comparisons are false).
	// Navigation must never see non-finite geometry.
	for _, v := range []float64{heading, offset, confidence, residual} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return noRow(count, "non-finite fit values"), nil
		}
	}

	return Estimate{
		Valid:          true,
		HeadingRad:     heading,
		LateralOffsetM: offset,
		Confidence:     confidence,
		RowPointCount:  count,
		ResidualRMS:    residual,
	}, nil
}
