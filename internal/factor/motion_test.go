package factor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/banshee-data/trackgraph/internal/geom"
	"github.com/banshee-data/trackgraph/internal/graph"
	"github.com/banshee-data/trackgraph/internal/testutil"
)

func geodesicDistance(a, b geom.Pose3) float64 {
	xi := geom.LogSE3(a.Between(b))
	var s float64
	for _, c := range xi {
		s += c * c
	}
	return math.Sqrt(s)
}

func sixSigma(t *testing.T, sigma float64) *graph.Diagonal {
	t.Helper()
	model, err := graph.NewIsotropic(6, sigma)
	testutil.AssertNoError(t, err)
	return model
}

func randomPose(rng *rand.Rand, scale float64) geom.Pose3 {
	var xi geom.Twist
	for i := range xi {
		xi[i] = scale * (2*rng.Float64() - 1)
	}
	return geom.ExpSE3(xi)
}

func TestConstantVelocityFactorValidation(t *testing.T) {
	k1, k2 := graph.Symbol('v', 0), graph.Symbol('v', 1)
	if _, err := NewConstantVelocityFactor(k1, k2, nil); err == nil {
		t.Error("expected error for nil noise model")
	}
	bad, err := graph.NewIsotropic(3, 0.1)
	testutil.AssertNoError(t, err)
	if _, err := NewConstantVelocityFactor(k1, k2, bad); err == nil {
		t.Error("expected error for 3-dimensional noise model")
	}
}

func TestConstantVelocityFactorZeroAtIdentity(t *testing.T) {
	k1, k2 := graph.Symbol('v', 0), graph.Symbol('v', 1)
	f, err := NewConstantVelocityFactor(k1, k2, sixSigma(t, 0.1))
	testutil.AssertNoError(t, err)

	pose := geom.ExpSE3(geom.Twist{0.3, -0.1, 0.2, 1, 2, 3})
	r := f.EvaluateError(pose, pose)
	testutil.AssertVecNear(t, r[:], make([]float64, 6), 1e-12)

	v := graph.NewValues()
	testutil.AssertNoError(t, v.Insert(k1, pose))
	testutil.AssertNoError(t, v.Insert(k2, pose))
	e, err := f.Error(v)
	testutil.AssertNoError(t, err)
	testutil.AssertNear(t, e, 0, 1e-12)
}

func TestConstantVelocityFactorMonotonicInDistance(t *testing.T) {
	k1, k2 := graph.Symbol('v', 0), graph.Symbol('v', 1)
	f, err := NewConstantVelocityFactor(k1, k2, sixSigma(t, 1.0))
	testutil.AssertNoError(t, err)

	base := geom.IdentityPose3()
	prevCost := -1.0
	prevDist := 0.0
	for _, d := range []float64{0, 0.1, 0.5, 1, 2, 5} {
		other := geom.NewPose3(geom.IdentityRot3(), geom.Vec3{d, 0, 0})
		dist := geodesicDistance(base, other)
		if dist < prevDist {
			t.Errorf("geodesic distance not increasing at %v", d)
		}
		v := graph.NewValues()
		testutil.AssertNoError(t, v.Insert(k1, base))
		testutil.AssertNoError(t, v.Insert(k2, other))
		cost, err := f.Error(v)
		testutil.AssertNoError(t, err)
		if cost <= prevCost {
			t.Errorf("cost at distance %v = %v, not increasing from %v", d, cost, prevCost)
		}
		prevCost, prevDist = cost, dist
	}
}

func TestConstantVelocityFactorJacobians(t *testing.T) {
	rng := rand.New(rand.NewSource(20))
	k1, k2 := graph.Symbol('v', 0), graph.Symbol('v', 1)
	f, err := NewConstantVelocityFactor(k1, k2, sixSigma(t, 0.1))
	testutil.AssertNoError(t, err)

	for i := 0; i < 10; i++ {
		x1 := randomPose(rng, 0.6)
		x2 := randomPose(rng, 0.6)

		r, h1, h2 := f.EvaluateErrorJacobians(x1, x2)
		plain := f.EvaluateError(x1, x2)
		testutil.AssertVecNear(t, r[:], plain[:], 1e-12)

		num1 := testutil.NumericalJacobian(func(d []float64) []float64 {
			var xi geom.Twist
			copy(xi[:], d)
			rr := f.EvaluateError(x1.Compose(geom.ExpSE3(xi)), x2)
			return rr[:]
		}, 6, 1e-5)
		testutil.AssertMatNear(t, h1, num1, 1e-6)

		num2 := testutil.NumericalJacobian(func(d []float64) []float64 {
			var xi geom.Twist
			copy(xi[:], d)
			rr := f.EvaluateError(x1, x2.Compose(geom.ExpSE3(xi)))
			return rr[:]
		}, 6, 1e-5)
		testutil.AssertMatNear(t, h2, num2, 1e-6)
	}
}

func TestConstantVelocityFactorMissingKey(t *testing.T) {
	k1, k2 := graph.Symbol('v', 0), graph.Symbol('v', 1)
	f, err := NewConstantVelocityFactor(k1, k2, sixSigma(t, 0.1))
	testutil.AssertNoError(t, err)

	v := graph.NewValues()
	testutil.AssertNoError(t, v.Insert(k1, geom.IdentityPose3()))
	if _, err := f.Error(v); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := f.Linearize(v); err == nil {
		t.Error("expected error for missing key at linearize")
	}
}

func TestStablePoseFactorZeroWhenConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	f, err := NewStablePoseFactor(
		graph.Symbol('x', 0), graph.Symbol('v', 0), graph.Symbol('x', 1),
		sixSigma(t, 0.05))
	testutil.AssertNoError(t, err)

	for i := 0; i < 10; i++ {
		prev := randomPose(rng, 0.8)
		vel := randomPose(rng, 0.3)
		next := prev.Compose(vel)

		r := f.EvaluateError(prev, vel, next)
		testutil.AssertVecNear(t, r[:], make([]float64, 6), 1e-9)
	}
}

func TestStablePoseFactorJacobians(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	f, err := NewStablePoseFactor(
		graph.Symbol('x', 0), graph.Symbol('v', 0), graph.Symbol('x', 1),
		sixSigma(t, 0.05))
	testutil.AssertNoError(t, err)

	for i := 0; i < 10; i++ {
		prev := randomPose(rng, 0.6)
		vel := randomPose(rng, 0.4)
		next := randomPose(rng, 0.6)

		r, h1, h2, h3 := f.EvaluateErrorJacobians(prev, vel, next)
		plain := f.EvaluateError(prev, vel, next)
		testutil.AssertVecNear(t, r[:], plain[:], 1e-12)

		num1 := testutil.NumericalJacobian(func(d []float64) []float64 {
			var xi geom.Twist
			copy(xi[:], d)
			rr := f.EvaluateError(prev.Compose(geom.ExpSE3(xi)), vel, next)
			return rr[:]
		}, 6, 1e-5)
		testutil.AssertMatNear(t, h1, num1, 1e-6)

		num2 := testutil.NumericalJacobian(func(d []float64) []float64 {
			var xi geom.Twist
			copy(xi[:], d)
			rr := f.EvaluateError(prev, vel.Compose(geom.ExpSE3(xi)), next)
			return rr[:]
		}, 6, 1e-5)
		testutil.AssertMatNear(t, h2, num2, 1e-6)

		num3 := testutil.NumericalJacobian(func(d []float64) []float64 {
			var xi geom.Twist
			copy(xi[:], d)
			rr := f.EvaluateError(prev, vel, next.Compose(geom.ExpSE3(xi)))
			return rr[:]
		}, 6, 1e-5)
		testutil.AssertMatNear(t, h3, num3, 1e-6)
	}
}

func TestStablePoseFactorLinearizeAtConsistentTriple(t *testing.T) {
	prevKey, velKey, nextKey := graph.Symbol('x', 0), graph.Symbol('v', 0), graph.Symbol('x', 1)
	f, err := NewStablePoseFactor(prevKey, velKey, nextKey, sixSigma(t, 0.05))
	testutil.AssertNoError(t, err)

	prev := geom.ExpSE3(geom.Twist{0.1, 0, -0.2, 1, 0, 0})
	vel := geom.ExpSE3(geom.Twist{0, 0.05, 0, 0.5, 0, 0})
	next := prev.Compose(vel)

	v := graph.NewValues()
	testutil.AssertNoError(t, v.Insert(prevKey, prev))
	testutil.AssertNoError(t, v.Insert(velKey, vel))
	testutil.AssertNoError(t, v.Insert(nextKey, next))

	jf, err := f.Linearize(v)
	testutil.AssertNoError(t, err)
	if got := jf.Error(); math.Abs(got) > 1e-12 {
		t.Errorf("linearized cost at consistent triple = %v, want 0", got)
	}
	if len(jf.Keys()) != 3 {
		t.Errorf("keys = %v, want 3 entries", jf.Keys())
	}
}

func TestStablePoseFactorKeys(t *testing.T) {
	prevKey, velKey, nextKey := graph.Symbol('x', 0), graph.Symbol('v', 0), graph.Symbol('x', 1)
	f, err := NewStablePoseFactor(prevKey, velKey, nextKey, sixSigma(t, 0.05))
	testutil.AssertNoError(t, err)

	if f.PreviousPoseKey() != prevKey || f.VelocityKey() != velKey || f.NextPoseKey() != nextKey {
		t.Error("key accessors mismatch")
	}
	if f.Dim() != 6 {
		t.Errorf("Dim = %d, want 6", f.Dim())
	}
}

func TestMotionFactorCloneAndEquals(t *testing.T) {
	k1, k2 := graph.Symbol('v', 0), graph.Symbol('v', 1)
	cv, err := NewConstantVelocityFactor(k1, k2, sixSigma(t, 0.1))
	testutil.AssertNoError(t, err)

	if !cv.Equals(cv.Clone(), 1e-9) {
		t.Error("clone should equal original")
	}

	cv2, err := NewConstantVelocityFactor(k1, k2, sixSigma(t, 0.2))
	testutil.AssertNoError(t, err)
	if cv.Equals(cv2, 1e-9) {
		t.Error("different noise models should not be equal")
	}

	sp, err := NewStablePoseFactor(k1, k2, graph.Symbol('x', 0), sixSigma(t, 0.1))
	testutil.AssertNoError(t, err)
	if cv.Equals(sp, 1e-9) {
		t.Error("different factor kinds should not be equal")
	}
	if !sp.Equals(sp.Clone(), 1e-9) {
		t.Error("stable pose clone should equal original")
	}
}
