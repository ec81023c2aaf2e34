package shellnet

import (
	"fmt"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/agrinav-robotics/rowfollow/internal/row/neighbors"
	"github.com/agrinav-robotics/rowfollow/internal/row/points"
)

// StageConfig describes one encoder stage. All values come from the
// checkpoint and are validated at load; a stage whose input count
// cannot supply K distinct neighbors is a configuration error, never a
// runtime data error.
type StageConfig struct {
	// Centroids is the stage's output point count. Centroids are the
	// prefix of the current active set, which is a uniform subsample
	// because the preprocessor emits points in random order.
	Centroids int `json:"centroids"`
	// K is the neighbor count per centroid.
	K int `json:"k"`
	// Divisions is the number of distance-ordered shells K is split into.
	Divisions int `json:"divisions"`
	// OutDim is the stage's per-centroid feature width.
	OutDim int `json:"out_dim"`
	// FeatureSpace selects feature-space neighbor distance instead of
	// raw 3D coordinates for this stage.
	FeatureSpace bool `json:"feature_space,omitempty"`
}

// EncoderStage pairs a stage configuration with its learned block.
type EncoderStage struct {
	Config StageConfig
	Conv   *ShellConv
}

// DecoderStage restores one resolution level: coarse features are
// interpolated onto the finer level's points and fused with that
// level's encoder features through a learned linear map.
type DecoderStage struct {
	OutDim int
	Fuse   *Linear // OutDim x (coarseDim + skipDim), ReLU
}

// Network is the hierarchical encoder/decoder. It is immutable after
// construction and safe for concurrent Forward calls.
type Network struct {
	Encoder []EncoderStage
	Decoder []DecoderStage

	indexer neighbors.Indexer
}

// level holds one resolution level of the encoding pass.
type level struct {
	coords []r3.Vector
	feats  *mat.Dense // nil at level 0 (raw points carry no features)
}

// Forward maps a sampled point set to one feature vector per point.
// The output has exactly len(pts) rows, index-aligned with pts.
func (n *Network) Forward(pts points.SampledPointSet) (*mat.Dense, error) {
	if len(n.Encoder) == 0 || len(n.Decoder) != len(n.Encoder) {
		return nil, fmt.Errorf("network: %d encoder / %d decoder stages", len(n.Encoder), len(n.Decoder))
	}

	levels := make([]level, 0, len(n.Encoder)+1)
	levels = append(levels, level{coords: pts})

	for i, st := range n.Encoder {
		cur := levels[len(levels)-1]
		cfg := st.Config

		queries := make([]int, cfg.Centroids)
		for q := range queries {
			queries[q] = q
		}
		space := neighbors.SpaceCoordinates
		if cfg.FeatureSpace {
			space = neighbors.SpaceFeatures
		}
		shells, err := n.indexer.Shells(neighbors.Request{
			Coords:   cur.coords,
			Features: cur.feats,
			Queries:  queries,
			K:        cfg.K,
			Space:    space,
		})
		if err != nil {
			return nil, fmt.Errorf("encoder stage %d: %w", i, err)
		}

		feats := mat.NewDense(cfg.Centroids, cfg.OutDim, nil)
		for c := range shells {
			out := st.Conv.Forward(shells[c], cur.feats)
			feats.SetRow(c, out.RawVector().Data)
		}
		levels = append(levels, level{coords: cur.coords[:cfg.Centroids], feats: feats})
	}

	// Decode: deepest level back up to full resolution.
	deepest := len(levels) - 1
	decoded := levels[deepest].feats
	for d, st := range n.Decoder {
		target := deepest - 1 - d
		interp := interpolate(levels[target].coords, levels[target+1].coords, decoded)

		skip := levels[target].feats
		skipDim := 0
		if skip != nil {
			_, skipDim = skip.Dims()
		}
		_, coarseDim := interp.Dims()

		out := mat.NewDense(len(levels[target].coords), st.OutDim, nil)
		in := mat.NewVecDense(coarseDim+skipDim, nil)
		for p := 0; p < len(levels[target].coords); p++ {
			for c := 0; c < coarseDim; c++ {
				in.SetVec(c, interp.At(p, c))
			}
			for c := 0; c < skipDim; c++ {
				in.SetVec(coarseDim+c, skip.At(p, c))
			}
			fused := st.Fuse.Apply(in)
			reluInPlace(fused)
			out.SetRow(p, fused.RawVector().Data)
		}
		decoded = out
	}

	if r, _ := decoded.Dims(); r != len(pts) {
		return nil, fmt.Errorf("network: decoded %d rows for %d points", r, len(pts))
	}
	return decoded, nil
}

// interpolationNeighbors is the number of coarse points blended per fine
// point during decoding.
const interpolationNeighbors = 3

// interpolate spreads coarse per-point features onto the finer level's
// points with inverse-squared-distance weights over the nearest coarse
// points. Coincident points (the centroid prefix overlaps the finer
// level) are handled by the epsilon in the weight.
func interpolate(fine, coarse []r3.Vector, coarseFeats *mat.Dense) *mat.Dense {
	_, dim := coarseFeats.Dims()
	out := mat.NewDense(len(fine), dim, nil)

	k := interpolationNeighbors
	if len(coarse) < k {
		k = len(coarse)
	}

	type cd struct {
		idx   int
		dist2 float64
	}
	cands := make([]cd, len(coarse))

	const eps = 1e-10
	for p, fp := range fine {
		for i, cp := range coarse {
			d := fp.Sub(cp)
			cands[i] = cd{idx: i, dist2: d.X*d.X + d.Y*d.Y + d.Z*d.Z}
		}
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].dist2 != cands[b].dist2 {
				return cands[a].dist2 < cands[b].dist2
			}
			return cands[a].idx < cands[b].idx
		})

		var wsum float64
		weights := make([]float64, k)
		for i := 0; i < k; i++ {
			weights[i] = 1.0 / (cands[i].dist2 + eps)
			wsum += weights[i]
		}
		for i := 0; i < k; i++ {
			w := weights[i] / wsum
			src := cands[i].idx
			for c := 0; c < dim; c++ {
				out.Set(p, c, out.At(p, c)+w*coarseFeats.At(src, c))
			}
		}
	}
	return out
}
