package factor

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trackgraph/internal/geom"
	"github.com/banshee-data/trackgraph/internal/graph"
)

// CouplingMode selects how a DetectionFactor linearizes with respect to
// the observer pose.
type CouplingMode int

const (
	// TightlyCoupled differentiates the residual through both the
	// object pose and the observer pose.
	TightlyCoupled CouplingMode = iota
	// LooselyCoupled freezes the observer pose for the current
	// linearization: it is used to transform the measurement but gets a
	// zero Jacobian block.
	LooselyCoupled
)

// String returns the mode name.
func (m CouplingMode) String() string {
	if m == LooselyCoupled {
		return "loosely-coupled"
	}
	return "tightly-coupled"
}

// DetectionFactor is a max-mixture factor over an object-pose variable
// and an observer-pose variable. It holds an ordered list of Gaussian
// hypotheses explaining one detection; every evaluation re-selects the
// best-explaining hypothesis at the current assignment, so the factor's
// cost surface is piecewise-smooth with the argmin switching as the
// estimate moves. Linearization uses only the selected hypothesis,
// yielding a single dense Gaussian factor per iteration.
//
// The residual is translation-only: the object's position in the
// observer frame against the hypothesis mean. Residual dimension is 3.
type DetectionFactor struct {
	objectKey   graph.Key
	observerKey graph.Key

	// hyps, noises, and zs are parallel arrays keyed by hypothesis
	// index; list order is the tie-break priority.
	hyps   []*Hypothesis
	noises []*graph.Diagonal
	zs     []geom.Vec3

	gamma float64
	mode  CouplingMode
}

var _ graph.Factor = (*DetectionFactor)(nil)

// NewDetectionFactor builds a detection factor from a non-empty ordered
// hypothesis list. Gamma is chosen so the best hypothesis has zero cost
// at its own mean: the negated minimum normalization term across the
// list. Use NewDetectionFactorWithGamma to pin gamma explicitly.
func NewDetectionFactor(hyps []*Hypothesis, objectKey, observerKey graph.Key, mode CouplingMode) (*DetectionFactor, error) {
	gamma := math.Inf(1)
	for _, h := range hyps {
		if h == nil {
			return nil, fmt.Errorf("detection factor: nil hypothesis")
		}
		if n := h.NormalizationTerm(); n < gamma {
			gamma = n
		}
	}
	if math.IsInf(gamma, 1) {
		gamma = 0
	}
	return NewDetectionFactorWithGamma(hyps, objectKey, observerKey, mode, -gamma)
}

// NewDetectionFactorWithGamma builds a detection factor with an explicit
// gamma normalization term.
func NewDetectionFactorWithGamma(hyps []*Hypothesis, objectKey, observerKey graph.Key, mode CouplingMode, gamma float64) (*DetectionFactor, error) {
	if len(hyps) == 0 {
		return nil, fmt.Errorf("detection factor: empty hypothesis list")
	}
	f := &DetectionFactor{
		objectKey:   objectKey,
		observerKey: observerKey,
		hyps:        append([]*Hypothesis(nil), hyps...),
		noises:      make([]*graph.Diagonal, 0, len(hyps)),
		zs:          make([]geom.Vec3, 0, len(hyps)),
		gamma:       gamma,
		mode:        mode,
	}
	for i, h := range hyps {
		if h == nil {
			return nil, fmt.Errorf("detection factor: nil hypothesis at index %d", i)
		}
		f.noises = append(f.noises, h.Noise())
		f.zs = append(f.zs, h.Mu())
	}
	return f, nil
}

// Keys returns the object-pose key then the observer-pose key.
func (f *DetectionFactor) Keys() []graph.Key {
	return []graph.Key{f.objectKey, f.observerKey}
}

// ObjectKey returns the object-pose variable key.
func (f *DetectionFactor) ObjectKey() graph.Key { return f.objectKey }

// ObserverKey returns the observer-pose variable key.
func (f *DetectionFactor) ObserverKey() graph.Key { return f.observerKey }

// Dim returns the residual dimension, fixed at 3.
func (f *DetectionFactor) Dim() int { return 3 }

// Gamma returns the factor's log-likelihood normalization term.
func (f *DetectionFactor) Gamma() float64 { return f.gamma }

// Mode returns the coupling mode.
func (f *DetectionFactor) Mode() CouplingMode { return f.mode }

// NumHypotheses returns the hypothesis count.
func (f *DetectionFactor) NumHypotheses() int { return len(f.hyps) }

// Hypothesis returns the hypothesis at index i.
func (f *DetectionFactor) Hypothesis(i int) *Hypothesis { return f.hyps[i] }

// ObjectPose looks up the object-pose estimate in the assignment.
func (f *DetectionFactor) ObjectPose(values *graph.Values) (geom.Pose3, error) {
	return values.Pose3At(f.objectKey)
}

// ObserverPose looks up the observer-pose estimate in the assignment.
func (f *DetectionFactor) ObserverPose(values *graph.Values) (geom.Pose3, error) {
	return values.Pose3At(f.observerKey)
}

// relativePose returns the object pose expressed in the observer frame.
func (f *DetectionFactor) relativePose(values *graph.Values) (geom.Pose3, error) {
	object, err := f.ObjectPose(values)
	if err != nil {
		return geom.Pose3{}, err
	}
	observer, err := f.ObserverPose(values)
	if err != nil {
		return geom.Pose3{}, err
	}
	return observer.Between(object), nil
}

// SelectHypothesis returns the index and cost of the hypothesis that
// best explains the given observer-relative pose. Ties resolve to the
// lowest index, which keeps repeated optimization runs reproducible.
func (f *DetectionFactor) SelectHypothesis(rel geom.Pose3) (int, float64) {
	best := 0
	bestErr := f.hyps[0].Error(rel.T, f.gamma)
	for i := 1; i < len(f.hyps); i++ {
		if e := f.hyps[i].Error(rel.T, f.gamma); e < bestErr {
			best, bestErr = i, e
		}
	}
	return best, bestErr
}

// SelectHypothesisValues runs hypothesis selection at the current
// assignment.
func (f *DetectionFactor) SelectHypothesisValues(values *graph.Values) (int, float64, error) {
	rel, err := f.relativePose(values)
	if err != nil {
		return 0, 0, err
	}
	idx, e := f.SelectHypothesis(rel)
	return idx, e, nil
}

// Error returns the minimum hypothesis cost at the current assignment:
// the max-mixture approximation keeps only the best-explaining
// component instead of summing over the mixture.
func (f *DetectionFactor) Error(values *graph.Values) (float64, error) {
	_, e, err := f.SelectHypothesisValues(values)
	return e, err
}

// Linearize re-runs hypothesis selection at the current assignment and
// builds one Gaussian factor from the selected hypothesis only.
//
// With q the object position in the observer frame and right
// perturbations on both poses, the translation residual q - z has
// object block [0 | R_rel] and observer block [skew(q) | -I]. In
// loosely-coupled mode the observer block is kept in the factor but
// zeroed, so the solver's variable ordering is stable across modes.
func (f *DetectionFactor) Linearize(values *graph.Values) (*graph.JacobianFactor, error) {
	rel, err := f.relativePose(values)
	if err != nil {
		return nil, err
	}
	idx, _ := f.SelectHypothesis(rel)

	q := rel.T
	z := f.zs[idx]

	objBlock := mat.NewDense(3, 6, nil)
	relRot := rel.R.Mat()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			objBlock.Set(i, 3+j, relRot.At(i, j))
		}
	}

	obsBlock := mat.NewDense(3, 6, nil)
	if f.mode == TightlyCoupled {
		qx := geom.Skew(q)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				obsBlock.Set(i, j, qx.At(i, j))
			}
			obsBlock.Set(i, 3+i, -1)
		}
	}

	r := q.Sub(z)
	b := mat.NewVecDense(3, []float64{-r[0], -r[1], -r[2]})

	return graph.NewJacobianFactor(
		[]graph.Key{f.objectKey, f.observerKey},
		[]*mat.Dense{objBlock, obsBlock},
		b,
		f.noises[idx],
	)
}

// Clone returns an independent copy. The hypothesis list is immutable
// and shared by reference.
func (f *DetectionFactor) Clone() graph.Factor {
	out := *f
	return &out
}

// Equals reports structural equality with another factor within tol.
func (f *DetectionFactor) Equals(other graph.Factor, tol float64) bool {
	o, ok := other.(*DetectionFactor)
	if !ok {
		return false
	}
	if f.objectKey != o.objectKey || f.observerKey != o.observerKey ||
		f.mode != o.mode || math.Abs(f.gamma-o.gamma) > tol ||
		len(f.hyps) != len(o.hyps) {
		return false
	}
	for i := range f.hyps {
		if !f.hyps[i].Equals(o.hyps[i], tol) {
			return false
		}
	}
	return true
}

// String describes the factor, its mode, and its hypotheses.
func (f *DetectionFactor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "DetectionFactor(%v,%v) %s gamma=%.4f\n", f.objectKey, f.observerKey, f.mode, f.gamma)
	for i, h := range f.hyps {
		fmt.Fprintf(&sb, "  [%d] %s\n", i, h)
	}
	return sb.String()
}
