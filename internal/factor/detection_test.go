package factor

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trackgraph/internal/geom"
	"github.com/banshee-data/trackgraph/internal/graph"
	"github.com/banshee-data/trackgraph/internal/testutil"
)

var (
	objKey = graph.Symbol('o', 0)
	obsKey = graph.Symbol('x', 0)
)

// twoHypothesisFactor mirrors the canonical setup: means at the origin
// and one meter along x, isotropic variance 0.01, weight 1, gamma 0.
func twoHypothesisFactor(t *testing.T, mode CouplingMode) *DetectionFactor {
	t.Helper()
	h0, err := NewHypothesisIsotropic(regionAt(geom.Vec3{0, 0, 0}), 0.01, 1.0)
	testutil.AssertNoError(t, err)
	h1, err := NewHypothesisIsotropic(regionAt(geom.Vec3{1, 0, 0}), 0.01, 1.0)
	testutil.AssertNoError(t, err)
	f, err := NewDetectionFactorWithGamma([]*Hypothesis{h0, h1}, objKey, obsKey, mode, 0)
	testutil.AssertNoError(t, err)
	return f
}

func valuesAt(t *testing.T, object, observer geom.Pose3) *graph.Values {
	t.Helper()
	v := graph.NewValues()
	testutil.AssertNoError(t, v.Insert(objKey, object))
	testutil.AssertNoError(t, v.Insert(obsKey, observer))
	return v
}

func translation(p geom.Vec3) geom.Pose3 {
	return geom.NewPose3(geom.IdentityRot3(), p)
}

func TestNewDetectionFactorEmptyList(t *testing.T) {
	if _, err := NewDetectionFactor(nil, objKey, obsKey, TightlyCoupled); err == nil {
		t.Error("expected error for empty hypothesis list")
	}
	if _, err := NewDetectionFactorWithGamma([]*Hypothesis{nil}, objKey, obsKey, TightlyCoupled, 0); err == nil {
		t.Error("expected error for nil hypothesis")
	}
}

func TestDetectionFactorErrorIsMinOverHypotheses(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	f := twoHypothesisFactor(t, TightlyCoupled)

	for i := 0; i < 50; i++ {
		x := geom.Vec3{4*rng.Float64() - 2, 4*rng.Float64() - 2, 4*rng.Float64() - 2}
		v := valuesAt(t, translation(x), geom.IdentityPose3())

		got, err := f.Error(v)
		testutil.AssertNoError(t, err)

		want := math.Min(
			f.Hypothesis(0).Error(x, f.Gamma()),
			f.Hypothesis(1).Error(x, f.Gamma()),
		)
		if got != want {
			t.Errorf("Error at %v = %v, want exact min %v", x, got, want)
		}
	}
}

func TestDetectionFactorSelectionScenario(t *testing.T) {
	f := twoHypothesisFactor(t, TightlyCoupled)

	cases := []struct {
		x    float64
		want int
	}{
		{0.05, 0},
		{0.95, 1},
		{0.5, 0}, // exact tie resolves to the lower index
	}
	for _, tc := range cases {
		idx, _ := f.SelectHypothesis(translation(geom.Vec3{tc.x, 0, 0}))
		if idx != tc.want {
			t.Errorf("at x=%v selected hypothesis %d, want %d", tc.x, idx, tc.want)
		}
	}
}

func TestDetectionFactorTieBreakDeterminism(t *testing.T) {
	// Two identical hypotheses: the lower index must always win.
	h0, err := NewHypothesisIsotropic(regionAt(geom.Vec3{1, 1, 1}), 0.02, 0.9)
	testutil.AssertNoError(t, err)
	h1, err := NewHypothesisIsotropic(regionAt(geom.Vec3{1, 1, 1}), 0.02, 0.9)
	testutil.AssertNoError(t, err)
	f, err := NewDetectionFactor([]*Hypothesis{h0, h1}, objKey, obsKey, TightlyCoupled)
	testutil.AssertNoError(t, err)

	for _, x := range []geom.Vec3{{}, {1, 1, 1}, {-3, 0.5, 2}} {
		idx, _ := f.SelectHypothesis(translation(x))
		if idx != 0 {
			t.Errorf("at %v selected hypothesis %d, want 0", x, idx)
		}
	}
}

func TestDetectionFactorAutoGammaNonNegative(t *testing.T) {
	// With the auto-computed gamma the factor cost never goes negative,
	// even for narrow covariances whose log-determinant is negative.
	h0, err := NewHypothesisIsotropic(regionAt(geom.Vec3{0, 0, 0}), 1e-4, 0.5)
	testutil.AssertNoError(t, err)
	h1, err := NewHypothesisIsotropic(regionAt(geom.Vec3{2, 0, 0}), 0.5, 1.0)
	testutil.AssertNoError(t, err)
	f, err := NewDetectionFactor([]*Hypothesis{h0, h1}, objKey, obsKey, TightlyCoupled)
	testutil.AssertNoError(t, err)

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 100; i++ {
		x := geom.Vec3{6*rng.Float64() - 3, 6*rng.Float64() - 3, 6*rng.Float64() - 3}
		v := valuesAt(t, translation(x), geom.IdentityPose3())
		e, err := f.Error(v)
		testutil.AssertNoError(t, err)
		if e < 0 {
			t.Errorf("cost at %v = %v, want >= 0", x, e)
		}
	}
}

func TestDetectionFactorMissingKey(t *testing.T) {
	f := twoHypothesisFactor(t, TightlyCoupled)

	v := graph.NewValues()
	testutil.AssertNoError(t, v.Insert(objKey, geom.IdentityPose3()))

	if _, err := f.Error(v); err == nil {
		t.Error("expected error for missing observer key")
	}
	if _, err := f.Linearize(v); err == nil {
		t.Error("expected error for missing observer key at linearize")
	}
	if _, _, err := f.SelectHypothesisValues(graph.NewValues()); err == nil {
		t.Error("expected error for empty assignment")
	}
}

func TestDetectionFactorObserverRelativeMeasurement(t *testing.T) {
	// Moving observer and object together leaves the relative
	// measurement, and therefore the selection, unchanged.
	f := twoHypothesisFactor(t, TightlyCoupled)

	offset := geom.ExpSE3(geom.Twist{0.2, -0.1, 0.3, 5, -2, 1})
	object := offset.Compose(translation(geom.Vec3{0.95, 0, 0}))
	v := valuesAt(t, object, offset)

	idx, _, err := f.SelectHypothesisValues(v)
	testutil.AssertNoError(t, err)
	if idx != 1 {
		t.Errorf("selected hypothesis %d, want 1", idx)
	}
}

func TestDetectionFactorLinearizeLooselyCoupled(t *testing.T) {
	f := twoHypothesisFactor(t, LooselyCoupled)
	v := valuesAt(t, translation(geom.Vec3{0.1, 0, 0}), geom.ExpSE3(geom.Twist{0.1, 0.2, -0.1, 1, 2, 3}))

	jf, err := f.Linearize(v)
	testutil.AssertNoError(t, err)

	obsBlock, ok := jf.Block(obsKey)
	if !ok {
		t.Fatal("observer block missing from loosely-coupled factor")
	}
	if mat.Norm(obsBlock, 1) != 0 {
		t.Error("observer block should be zero in loosely-coupled mode")
	}

	objBlock, ok := jf.Block(objKey)
	if !ok {
		t.Fatal("object block missing")
	}
	if mat.Norm(objBlock, 1) == 0 {
		t.Error("object block should be non-zero")
	}
}

func TestDetectionFactorLinearizeTightlyCoupled(t *testing.T) {
	f := twoHypothesisFactor(t, TightlyCoupled)
	observer := geom.ExpSE3(geom.Twist{0.1, 0.2, -0.1, 1, 2, 3})
	object := observer.Compose(translation(geom.Vec3{0.9, 0.1, -0.2}))
	v := valuesAt(t, object, observer)

	jf, err := f.Linearize(v)
	testutil.AssertNoError(t, err)

	objBlock, _ := jf.Block(objKey)
	obsBlock, _ := jf.Block(obsKey)
	if mat.Norm(objBlock, 1) == 0 || mat.Norm(obsBlock, 1) == 0 {
		t.Fatal("both blocks should be non-zero in tightly-coupled mode")
	}

	// Verify both Jacobian blocks against central differences of the
	// translation residual under right perturbations.
	idx, _, err := f.SelectHypothesisValues(v)
	testutil.AssertNoError(t, err)
	z := f.Hypothesis(idx).Mu()

	residual := func(obj, obs geom.Pose3) []float64 {
		q := obs.Between(obj).T
		r := q.Sub(z)
		return r[:]
	}

	numObj := testutil.NumericalJacobian(func(d []float64) []float64 {
		var xi geom.Twist
		copy(xi[:], d)
		return residual(object.Compose(geom.ExpSE3(xi)), observer)
	}, 6, 1e-6)
	testutil.AssertMatNear(t, objBlock, numObj, 1e-6)

	numObs := testutil.NumericalJacobian(func(d []float64) []float64 {
		var xi geom.Twist
		copy(xi[:], d)
		return residual(object, observer.Compose(geom.ExpSE3(xi)))
	}, 6, 1e-6)
	testutil.AssertMatNear(t, obsBlock, numObs, 1e-6)

	// The rotation columns of the object block stay zero: the residual
	// is translation-only.
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if objBlock.At(i, j) != 0 {
				t.Errorf("object rotation column [%d,%d] = %v, want 0", i, j, objBlock.At(i, j))
			}
		}
	}
}

func TestDetectionFactorLinearizeUsesSelectedHypothesis(t *testing.T) {
	h0, err := NewHypothesisIsotropic(regionAt(geom.Vec3{0, 0, 0}), 0.01, 1.0)
	testutil.AssertNoError(t, err)
	h1, err := NewHypothesisIsotropic(regionAt(geom.Vec3{1, 0, 0}), 0.09, 1.0)
	testutil.AssertNoError(t, err)
	f, err := NewDetectionFactorWithGamma([]*Hypothesis{h0, h1}, objKey, obsKey, TightlyCoupled, 0)
	testutil.AssertNoError(t, err)

	// Near hypothesis 1: the linear factor must carry its noise model.
	v := valuesAt(t, translation(geom.Vec3{0.98, 0, 0}), geom.IdentityPose3())
	jf, err := f.Linearize(v)
	testutil.AssertNoError(t, err)
	if got := jf.Model().Sigmas()[0]; math.Abs(got-0.3) > 1e-12 {
		t.Errorf("linear factor sigma = %v, want 0.3 from hypothesis 1", got)
	}

	// The rhs is the negated residual against the selected measurement.
	if got := jf.RHS().AtVec(0); math.Abs(got-0.02) > 1e-12 {
		t.Errorf("rhs[0] = %v, want 0.02", got)
	}
}

func TestDetectionFactorSelectionChangesAcrossCalls(t *testing.T) {
	// The argmin is a function of the assignment only: moving the
	// estimate across the midpoint flips the selection back and forth.
	f := twoHypothesisFactor(t, TightlyCoupled)

	for _, tc := range []struct {
		x    float64
		want int
	}{{0.1, 0}, {0.9, 1}, {0.2, 0}, {0.8, 1}} {
		v := valuesAt(t, translation(geom.Vec3{tc.x, 0, 0}), geom.IdentityPose3())
		idx, _, err := f.SelectHypothesisValues(v)
		testutil.AssertNoError(t, err)
		if idx != tc.want {
			t.Errorf("at x=%v selected %d, want %d", tc.x, idx, tc.want)
		}
	}
}

func TestDetectionFactorCloneAndEquals(t *testing.T) {
	f := twoHypothesisFactor(t, TightlyCoupled)

	c := f.Clone()
	if !f.Equals(c, 1e-9) {
		t.Error("clone should equal original")
	}

	loose := twoHypothesisFactor(t, LooselyCoupled)
	if f.Equals(loose, 1e-9) {
		t.Error("different modes should not be equal")
	}

	other, err := NewStablePoseFactor(objKey, obsKey, graph.Symbol('v', 0), sixSigma(t, 0.1))
	testutil.AssertNoError(t, err)
	if f.Equals(other, 1e-9) {
		t.Error("different factor kinds should not be equal")
	}
}

func TestDetectionFactorDimAndKeys(t *testing.T) {
	f := twoHypothesisFactor(t, TightlyCoupled)
	if f.Dim() != 3 {
		t.Errorf("Dim = %d, want 3", f.Dim())
	}
	keys := f.Keys()
	if len(keys) != 2 || keys[0] != objKey || keys[1] != obsKey {
		t.Errorf("Keys = %v", keys)
	}
	if f.NumHypotheses() != 2 {
		t.Errorf("NumHypotheses = %d", f.NumHypotheses())
	}
}
