package shellnet

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/agrinav-robotics/rowfollow/internal/row/points"
)

// Architecture is the stage configuration carried by a checkpoint. It
// fully determines every weight shape, so validation here plus shape
// checks on the weights themselves catch any checkpoint inconsistency
// before inference starts.
type Architecture struct {
	// PointFeatures is the lift output width F (the shared per-neighbor
	// feature size). Must be even: the lift's hidden layer is F/2 wide.
	PointFeatures int `json:"point_features"`
	// Encoder lists the downsampling stages, finest first.
	Encoder []StageConfig `json:"encoder"`
	// DecoderDims lists the decoder fusion output widths, deepest first.
	// One entry per encoder stage.
	DecoderDims []int `json:"decoder_dims"`
	// ClassifierHidden is the classifier MLP's hidden width.
	ClassifierHidden int `json:"classifier_hidden"`
	// Classes maps class index to semantic name.
	Classes ClassLabelMap `json:"classes"`
	// RowClass is the index of the traversable-row class in Classes.
	RowClass int `json:"row_class"`
}

// DefaultArchitecture returns the shipped stage scale: 1024 points
// reduced to 512/128/32 centroids with 4-division shell convolutions.
func DefaultArchitecture() Architecture {
	return Architecture{
		PointFeatures: 64,
		Encoder: []StageConfig{
			{Centroids: 512, K: 32, Divisions: 4, OutDim: 128},
			{Centroids: 128, K: 32, Divisions: 4, OutDim: 256},
			{Centroids: 32, K: 16, Divisions: 4, OutDim: 512},
		},
		DecoderDims:      []int{256, 128, 64},
		ClassifierHidden: 64,
		Classes:          ClassLabelMap{"ground", "row"},
		RowClass:         1,
	}
}

// Validate rejects any stage configuration that could fail at runtime.
// Callers treat a validation error as fatal at startup.
func (a Architecture) Validate() error {
	if a.PointFeatures <= 0 || a.PointFeatures%2 != 0 {
		return fmt.Errorf("architecture: point_features %d must be positive and even", a.PointFeatures)
	}
	if len(a.Encoder) == 0 {
		return fmt.Errorf("architecture: no encoder stages")
	}
	if len(a.DecoderDims) != len(a.Encoder) {
		return fmt.Errorf("architecture: %d decoder dims for %d encoder stages",
			len(a.DecoderDims), len(a.Encoder))
	}

	active := points.SampleSize
	for i, st := range a.Encoder {
		if st.Centroids <= 0 || st.Centroids > active {
			return fmt.Errorf("architecture: stage %d selects %d centroids from %d points", i, st.Centroids, active)
		}
		if st.K <= 0 || st.Divisions <= 0 {
			return fmt.Errorf("architecture: stage %d has K=%d divisions=%d", i, st.K, st.Divisions)
		}
		if st.K%st.Divisions != 0 {
			return fmt.Errorf("architecture: stage %d K=%d not divisible into %d shells", i, st.K, st.Divisions)
		}
		// The query is excluded from its own shell, so a set of `active`
		// points offers only active-1 candidates.
		if active <= st.K {
			return fmt.Errorf("architecture: stage %d needs %d neighbors from %d active points", i, st.K, active)
		}
		if st.OutDim <= 0 {
			return fmt.Errorf("architecture: stage %d out_dim %d", i, st.OutDim)
		}
		if i == 0 && st.FeatureSpace {
			return fmt.Errorf("architecture: stage 0 cannot use feature-space distance (raw points carry no features)")
		}
		active = st.Centroids
	}

	for i, d := range a.DecoderDims {
		if d <= 0 {
			return fmt.Errorf("architecture: decoder dim %d is %d", i, d)
		}
	}
	if a.ClassifierHidden <= 0 {
		return fmt.Errorf("architecture: classifier_hidden %d", a.ClassifierHidden)
	}
	if len(a.Classes) < 2 {
		return fmt.Errorf("architecture: %d classes, need at least 2", len(a.Classes))
	}
	if a.RowClass < 0 || a.RowClass >= len(a.Classes) {
		return fmt.Errorf("architecture: row_class %d out of range [0,%d)", a.RowClass, len(a.Classes))
	}
	return nil
}

// stagePrevDim returns the per-point feature width entering encoder
// stage i (0 for the first stage: raw points carry no features).
func (a Architecture) stagePrevDim(i int) int {
	if i == 0 {
		return 0
	}
	return a.Encoder[i-1].OutDim
}

// decoderInDim returns the fusion input width of decoder stage d
// (deepest first): interpolated coarse features plus the encoder skip
// features of the target level.
func (a Architecture) decoderInDim(d int) int {
	coarse := a.Encoder[len(a.Encoder)-1].OutDim
	if d > 0 {
		coarse = a.DecoderDims[d-1]
	}
	target := len(a.Encoder) - 1 - d
	skip := 0
	if target > 0 {
		skip = a.Encoder[target-1].OutDim
	}
	return coarse + skip
}

// Model bundles the loaded network, classifier and label map. It is
// constructed once at startup and treated as immutable: inference reads
// it concurrently without locks.
type Model struct {
	Arch Architecture
	Net  *Network
	Cls  *Classifier
}

// NewModel builds a model with freshly initialised random weights. Used
// by tests and by bootstrap tooling before a trained checkpoint exists;
// production loads weights with Load.
func NewModel(arch Architecture, seed int64) (*Model, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))

	net := &Network{}
	for i, st := range arch.Encoder {
		net.Encoder = append(net.Encoder, EncoderStage{
			Config: st,
			Conv:   newShellConv(st.K, st.Divisions, arch.stagePrevDim(i), st.OutDim, arch.PointFeatures, rng),
		})
	}
	for d, dim := range arch.DecoderDims {
		net.Decoder = append(net.Decoder, DecoderStage{
			OutDim: dim,
			Fuse:   newLinear(dim, arch.decoderInDim(d), rng),
		})
	}

	final := arch.DecoderDims[len(arch.DecoderDims)-1]
	cls := &Classifier{
		Hidden: newLinear(arch.ClassifierHidden, final, rng),
		Out:    newLinear(len(arch.Classes), arch.ClassifierHidden, rng),
	}

	return &Model{Arch: arch, Net: net, Cls: cls}, nil
}

// Labels returns the model's immutable class label map.
func (m *Model) Labels() ClassLabelMap { return m.Arch.Classes }

// RowClass returns the traversable-row class index.
func (m *Model) RowClass() int { return m.Arch.RowClass }

// Label runs the full network and classifier on one sampled point set,
// producing one class index per point, aligned with pts.
func (m *Model) Label(pts points.SampledPointSet) ([]int, error) {
	feats, err := m.Net.Forward(pts)
	if err != nil {
		return nil, err
	}
	return m.Cls.Label(feats)
}

// ---------------------------------------------------------------------------
// Checkpoint serialisation. JSON, like every other persisted config in
// this codebase; weights are row-major [][]float64.
// ---------------------------------------------------------------------------

type linearJSON struct {
	W [][]float64 `json:"w"`
	B []float64   `json:"b"`
}

type shellConvJSON struct {
	Lift1   linearJSON `json:"lift1"`
	Lift2   linearJSON `json:"lift2"`
	Combine linearJSON `json:"combine"`
}

type classifierJSON struct {
	Hidden linearJSON `json:"hidden"`
	Out    linearJSON `json:"out"`
}

type checkpointFile struct {
	Architecture Architecture    `json:"architecture"`
	Encoder      []shellConvJSON `json:"encoder_weights"`
	Decoder      []linearJSON    `json:"decoder_weights"`
	Classifier   classifierJSON  `json:"classifier_weights"`
}

func linearToJSON(l *Linear) linearJSON {
	r, c := l.W.Dims()
	w := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		copy(row, l.W.RawRowView(i))
		w[i] = row
	}
	b := make([]float64, l.B.Len())
	copy(b, l.B.RawVector().Data)
	return linearJSON{W: w, B: b}
}

func linearFromJSON(name string, j linearJSON) (*Linear, error) {
	if len(j.W) == 0 || len(j.W[0]) == 0 {
		return nil, fmt.Errorf("%s: empty weight matrix", name)
	}
	rows, cols := len(j.W), len(j.W[0])
	data := make([]float64, 0, rows*cols)
	for i, row := range j.W {
		if len(row) != cols {
			return nil, fmt.Errorf("%s: ragged weight row %d", name, i)
		}
		data = append(data, row...)
	}
	if len(j.B) != rows {
		return nil, fmt.Errorf("%s: bias length %d for %d rows", name, len(j.B), rows)
	}
	b := make([]float64, rows)
	copy(b, j.B)
	return &Linear{W: mat.NewDense(rows, cols, data), B: mat.NewVecDense(rows, b)}, nil
}

// Save writes the model to a JSON checkpoint file.
func (m *Model) Save(path string) error {
	ckpt := checkpointFile{Architecture: m.Arch}
	for _, st := range m.Net.Encoder {
		ckpt.Encoder = append(ckpt.Encoder, shellConvJSON{
			Lift1:   linearToJSON(st.Conv.Lift1),
			Lift2:   linearToJSON(st.Conv.Lift2),
			Combine: linearToJSON(st.Conv.Combine),
		})
	}
	for _, st := range m.Net.Decoder {
		ckpt.Decoder = append(ckpt.Decoder, linearToJSON(st.Fuse))
	}
	ckpt.Classifier = classifierJSON{
		Hidden: linearToJSON(m.Cls.Hidden),
		Out:    linearToJSON(m.Cls.Out),
	}

	data, err := json.Marshal(&ckpt)
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads and validates a JSON checkpoint. Any failure (missing
// file, malformed JSON, inconsistent stage configuration, or a weight
// shape mismatch) is fatal at startup: no inference is attempted.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	var ckpt checkpointFile
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("checkpoint: decode %s: %w", path, err)
	}

	arch := ckpt.Architecture
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	if len(ckpt.Encoder) != len(arch.Encoder) {
		return nil, fmt.Errorf("checkpoint: %d encoder weight sets for %d stages",
			len(ckpt.Encoder), len(arch.Encoder))
	}
	if len(ckpt.Decoder) != len(arch.DecoderDims) {
		return nil, fmt.Errorf("checkpoint: %d decoder weight sets for %d stages",
			len(ckpt.Decoder), len(arch.DecoderDims))
	}

	net := &Network{}
	for i, st := range arch.Encoder {
		name := fmt.Sprintf("checkpoint: encoder stage %d", i)
		l1, err := linearFromJSON(name+" lift1", ckpt.Encoder[i].Lift1)
		if err != nil {
			return nil, err
		}
		l2, err := linearFromJSON(name+" lift2", ckpt.Encoder[i].Lift2)
		if err != nil {
			return nil, err
		}
		comb, err := linearFromJSON(name+" combine", ckpt.Encoder[i].Combine)
		if err != nil {
			return nil, err
		}
		conv := &ShellConv{
			K:         st.K,
			Divisions: st.Divisions,
			PrevDim:   arch.stagePrevDim(i),
			OutDim:    st.OutDim,
			Lift1:     l1,
			Lift2:     l2,
			Combine:   comb,
		}
		if err := conv.checkShapes(name, arch.PointFeatures); err != nil {
			return nil, err
		}
		net.Encoder = append(net.Encoder, EncoderStage{Config: st, Conv: conv})
	}

	for d, dim := range arch.DecoderDims {
		name := fmt.Sprintf("checkpoint: decoder stage %d", d)
		fuse, err := linearFromJSON(name, ckpt.Decoder[d])
		if err != nil {
			return nil, err
		}
		if err := fuse.checkShape(name, dim, arch.decoderInDim(d)); err != nil {
			return nil, err
		}
		net.Decoder = append(net.Decoder, DecoderStage{OutDim: dim, Fuse: fuse})
	}

	final := arch.DecoderDims[len(arch.DecoderDims)-1]
	hidden, err := linearFromJSON("checkpoint: classifier hidden", ckpt.Classifier.Hidden)
	if err != nil {
		return nil, err
	}
	if err := hidden.checkShape("checkpoint: classifier hidden", arch.ClassifierHidden, final); err != nil {
		return nil, err
	}
	out, err := linearFromJSON("checkpoint: classifier out", ckpt.Classifier.Out)
	if err != nil {
		return nil, err
	}
	if err := out.checkShape("checkpoint: classifier out", len(arch.Classes), arch.ClassifierHidden); err != nil {
		return nil, err
	}

	return &Model{Arch: arch, Net: net, Cls: &Classifier{Hidden: hidden, Out: out}}, nil
}
