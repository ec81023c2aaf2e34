package pipeline

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrinav-robotics/rowfollow/internal/row"
	"github.com/agrinav-robotics/rowfollow/internal/row/extract"
	"github.com/agrinav-robotics/rowfollow/internal/row/points"
	"github.com/agrinav-robotics/rowfollow/internal/row/shellnet"
)

// geometryLabeler labels by a pure geometric rule, standing in for the
// network in scenario tests.
type geometryLabeler struct {
	calls atomic.Int32
	fn    func(p r3.Vector) int
}

func (g *geometryLabeler) Label(pts points.SampledPointSet) ([]int, error) {
	g.calls.Add(1)
	labels := make([]int, len(pts))
	for i, p := range pts {
		labels[i] = g.fn(p)
	}
	return labels, nil
}

// twoParallelLines builds a 2000-point cloud of two 10 m lines 1 m
// apart, the first passing through the origin at the given heading.
func twoParallelLines(headingRad float64) []r3.Vector {
	dx, dy := math.Cos(headingRad), math.Sin(headingRad)
	nx, ny := -dy, dx
	pts := make([]r3.Vector, 0, 2000)
	for i := 0; i < 1000; i++ {
		t := 10 * float64(i) / 999
		pts = append(pts, r3.Vector{X: t * dx, Y: t * dy, Z: 0})
		pts = append(pts, r3.Vector{X: t*dx + nx, Y: t*dy + ny, Z: 0})
	}
	return pts
}

func newTestEngine(t *testing.T, labeler Labeler) *Engine {
	t.Helper()
	eng, err := NewEngine(EngineConfig{
		Sampler: points.NewPreprocessor(),
		Labeler: labeler,
		Fitter:  extract.NewExtractor(extract.DefaultParams()),
		Seed:    12345,
	})
	require.NoError(t, err)
	return eng
}

func TestScenarioATwoParallelLines(t *testing.T) {
	t.Parallel()

	const wantHeading = 8 * math.Pi / 180
	cloud := twoParallelLines(wantHeading)

	// Label the line through the origin as row.
	dx, dy := math.Cos(wantHeading), math.Sin(wantHeading)
	labeler := &geometryLabeler{fn: func(p r3.Vector) int {
		if math.Abs(p.X*(-dy)+p.Y*dx) < 0.2 {
			return 1
		}
		return 0
	}}

	eng := newTestEngine(t, labeler)
	res := eng.ProcessFrame(row.NewFrame(cloud, time.Now()), 1)
	require.NoError(t, res.Err)
	require.True(t, res.Estimate.Valid, res.Estimate.Reason)
	assert.InDelta(t, wantHeading, res.Estimate.HeadingRad, 2*math.Pi/180,
		"heading must be within 2 degrees of the true line direction")
	assert.Greater(t, res.Estimate.RowPointCount, 100)
}

func TestScenarioBInsufficientSupport(t *testing.T) {
	t.Parallel()

	cloud := twoParallelLines(0)
	// Only the three points at the far end of the near line get the row
	// label, well below the minimum support threshold.
	labeler := &geometryLabeler{fn: func(p r3.Vector) int {
		if p.Y < 0.1 && p.X > 9.97 {
			return 1
		}
		return 0
	}}

	eng := newTestEngine(t, labeler)
	res := eng.ProcessFrame(row.NewFrame(cloud, time.Now()), 1)
	require.NoError(t, res.Err)
	assert.False(t, res.Estimate.Valid)
	assert.Equal(t, "insufficient support", res.Estimate.Reason)
}

func TestScenarioCEmptyScanSkipsLaterStages(t *testing.T) {
	t.Parallel()

	labeler := &geometryLabeler{fn: func(r3.Vector) int { return 0 }}
	eng := newTestEngine(t, labeler)

	res := eng.ProcessFrame(row.NewFrame(nil, time.Now()), 1)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, points.ErrEmptyScan)
	assert.Equal(t, int32(0), labeler.calls.Load(),
		"labelling (and everything after it) must not run for an empty scan")
}

func TestPipelineDeterministicForSeed(t *testing.T) {
	t.Parallel()

	arch := shellnet.Architecture{
		PointFeatures: 16,
		Encoder: []shellnet.StageConfig{
			{Centroids: 64, K: 8, Divisions: 2, OutDim: 24},
			{Centroids: 16, K: 8, Divisions: 2, OutDim: 32},
		},
		DecoderDims:      []int{24, 16},
		ClassifierHidden: 12,
		Classes:          shellnet.ClassLabelMap{"ground", "row"},
		RowClass:         1,
	}
	model, err := shellnet.NewModel(arch, 99)
	require.NoError(t, err)

	cloud := twoParallelLines(0.1)
	run := func() FrameResult {
		eng, err := NewEngine(EngineConfig{
			Sampler: points.NewPreprocessor(),
			Labeler: model,
			Fitter:  extract.NewExtractor(extract.DefaultParams()),
			Seed:    777,
		})
		require.NoError(t, err)
		frame := row.Frame{ID: "frame-0", Stamp: time.Unix(0, 0), Points: cloud}
		return eng.ProcessFrame(frame, 1)
	}

	a := run()
	b := run()
	require.NoError(t, a.Err)
	require.NoError(t, b.Err)
	assert.Equal(t, a.Estimate, b.Estimate,
		"same scan and seed must produce an identical estimate")
}

// chanSink forwards results to a channel for test inspection.
type chanSink struct{ ch chan FrameResult }

func (s *chanSink) PublishEstimate(res FrameResult) { s.ch <- res }

func TestRuntimeDropsStaleFrames(t *testing.T) {
	t.Parallel()

	labeler := &geometryLabeler{fn: func(r3.Vector) int { return 0 }}
	eng := newTestEngine(t, labeler)
	sink := &chanSink{ch: make(chan FrameResult, 8)}
	rt := NewRuntime(eng, sink)

	// No consumer running: the second and third submissions must evict
	// the unserviced earlier frames.
	cloud := twoParallelLines(0)
	rt.Submit(row.Frame{ID: "a", Points: cloud})
	rt.Submit(row.Frame{ID: "b", Points: cloud})
	rt.Submit(row.Frame{ID: "c", Points: cloud})
	assert.Equal(t, uint64(2), rt.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	res := <-sink.ch
	assert.Equal(t, "c", res.FrameID, "only the freshest frame survives")
}

func TestRuntimeEmitsInArrivalOrder(t *testing.T) {
	t.Parallel()

	labeler := &geometryLabeler{fn: func(r3.Vector) int { return 0 }}
	eng := newTestEngine(t, labeler)
	sink := &chanSink{ch: make(chan FrameResult, 1)}
	rt := NewRuntime(eng, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	cloud := twoParallelLines(0)
	ids := []string{"f1", "f2", "f3", "f4"}
	var lastSeq uint64
	for _, id := range ids {
		rt.Submit(row.Frame{ID: id, Points: cloud})
		res := <-sink.ch
		assert.Equal(t, id, res.FrameID)
		assert.Greater(t, res.Seq, lastSeq, "sequence numbers must increase monotonically")
		lastSeq = res.Seq
	}
	assert.Equal(t, uint64(0), rt.Dropped())
}
