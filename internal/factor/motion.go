package factor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trackgraph/internal/geom"
	"github.com/banshee-data/trackgraph/internal/graph"
)

// ConstantVelocityFactor softly constrains two pose variables to be
// related by the identity transform. Between consecutive velocity
// variables it encodes the constant-velocity motion prior. The residual
// is the SE(3) log map of the relative transform, zero when the poses
// coincide and growing with their geodesic separation.
type ConstantVelocityFactor struct {
	key1, key2 graph.Key
	model      *graph.Diagonal
}

var (
	_ graph.Factor = (*ConstantVelocityFactor)(nil)
	_ graph.Factor = (*StablePoseFactor)(nil)
)

// NewConstantVelocityFactor builds the factor; the noise model must be
// 6-dimensional.
func NewConstantVelocityFactor(key1, key2 graph.Key, model *graph.Diagonal) (*ConstantVelocityFactor, error) {
	if model == nil {
		return nil, fmt.Errorf("constant velocity factor: nil noise model")
	}
	if model.Dim() != 6 {
		return nil, fmt.Errorf("constant velocity factor: noise dimension %d, want 6", model.Dim())
	}
	return &ConstantVelocityFactor{key1: key1, key2: key2, model: model}, nil
}

// Keys returns the two pose keys.
func (f *ConstantVelocityFactor) Keys() []graph.Key {
	return []graph.Key{f.key1, f.key2}
}

// Dim returns the residual dimension.
func (f *ConstantVelocityFactor) Dim() int { return 6 }

// EvaluateError returns the unwhitened residual Log(x1^-1 * x2).
func (f *ConstantVelocityFactor) EvaluateError(x1, x2 geom.Pose3) geom.Twist {
	return geom.LogSE3(x1.Between(x2))
}

// EvaluateErrorJacobians returns the residual together with its exact
// derivatives with respect to right perturbations of x1 and x2.
func (f *ConstantVelocityFactor) EvaluateErrorJacobians(x1, x2 geom.Pose3) (geom.Twist, *mat.Dense, *mat.Dense) {
	e := x1.Between(x2)
	xi := geom.LogSE3(e)
	dlog := geom.LogmapDerivativeSE3(xi)

	// H2 = Dlog; H1 = -Dlog * Ad(e^-1).
	h2 := mat.NewDense(6, 6, nil)
	h2.Copy(dlog)
	h1 := mat.NewDense(6, 6, nil)
	h1.Mul(dlog, e.Inverse().Adjoint())
	h1.Scale(-1, h1)
	return xi, h1, h2
}

// Error returns half the whitened squared residual at the assignment.
func (f *ConstantVelocityFactor) Error(values *graph.Values) (float64, error) {
	x1, err := values.Pose3At(f.key1)
	if err != nil {
		return 0, err
	}
	x2, err := values.Pose3At(f.key2)
	if err != nil {
		return 0, err
	}
	r := f.EvaluateError(x1, x2)
	return 0.5 * f.model.SquaredMahalanobis(r[:]), nil
}

// Linearize produces the Gaussian factor at the current assignment.
func (f *ConstantVelocityFactor) Linearize(values *graph.Values) (*graph.JacobianFactor, error) {
	x1, err := values.Pose3At(f.key1)
	if err != nil {
		return nil, err
	}
	x2, err := values.Pose3At(f.key2)
	if err != nil {
		return nil, err
	}
	r, h1, h2 := f.EvaluateErrorJacobians(x1, x2)
	b := mat.NewVecDense(6, nil)
	for i := 0; i < 6; i++ {
		b.SetVec(i, -r[i])
	}
	return graph.NewJacobianFactor(
		[]graph.Key{f.key1, f.key2},
		[]*mat.Dense{h1, h2},
		b,
		f.model,
	)
}

// Clone returns an independent copy.
func (f *ConstantVelocityFactor) Clone() graph.Factor {
	out := *f
	return &out
}

// Equals reports structural equality within tol.
func (f *ConstantVelocityFactor) Equals(other graph.Factor, tol float64) bool {
	o, ok := other.(*ConstantVelocityFactor)
	if !ok {
		return false
	}
	return f.key1 == o.key1 && f.key2 == o.key2 && f.model.Equals(o.model, tol)
}

// String describes the factor.
func (f *ConstantVelocityFactor) String() string {
	return fmt.Sprintf("ConstantVelocityFactor(%v,%v) noise: %s", f.key1, f.key2, f.model)
}

// StablePoseFactor constrains a pose triple (previousPose, velocity,
// nextPose) to satisfy nextPose = previousPose * velocity. The residual
// is the SE(3) log map of the discrepancy between the predicted and the
// actual next pose, with exact analytic Jacobians for all three
// variables.
type StablePoseFactor struct {
	previousPoseKey graph.Key
	velocityKey     graph.Key
	nextPoseKey     graph.Key
	model           *graph.Diagonal
}

// NewStablePoseFactor builds the factor; the noise model must be
// 6-dimensional.
func NewStablePoseFactor(previousPoseKey, velocityKey, nextPoseKey graph.Key, model *graph.Diagonal) (*StablePoseFactor, error) {
	if model == nil {
		return nil, fmt.Errorf("stable pose factor: nil noise model")
	}
	if model.Dim() != 6 {
		return nil, fmt.Errorf("stable pose factor: noise dimension %d, want 6", model.Dim())
	}
	return &StablePoseFactor{
		previousPoseKey: previousPoseKey,
		velocityKey:     velocityKey,
		nextPoseKey:     nextPoseKey,
		model:           model,
	}, nil
}

// PreviousPoseKey returns the previous-pose variable key.
func (f *StablePoseFactor) PreviousPoseKey() graph.Key { return f.previousPoseKey }

// VelocityKey returns the velocity variable key.
func (f *StablePoseFactor) VelocityKey() graph.Key { return f.velocityKey }

// NextPoseKey returns the next-pose variable key.
func (f *StablePoseFactor) NextPoseKey() graph.Key { return f.nextPoseKey }

// Keys returns previous pose, velocity, and next pose keys in order.
func (f *StablePoseFactor) Keys() []graph.Key {
	return []graph.Key{f.previousPoseKey, f.velocityKey, f.nextPoseKey}
}

// Dim returns the residual dimension.
func (f *StablePoseFactor) Dim() int { return 6 }

// EvaluateError returns the unwhitened residual
// Log((previousPose * velocity)^-1 * nextPose), the zero twist exactly
// when the triple is consistent.
func (f *StablePoseFactor) EvaluateError(previousPose, velocity, nextPose geom.Pose3) geom.Twist {
	predicted := previousPose.Compose(velocity)
	return geom.LogSE3(predicted.Between(nextPose))
}

// EvaluateErrorJacobians returns the residual and its exact derivatives
// with respect to right perturbations of the three inputs. With
// e = (prev * vel)^-1 * next and xi = Log(e):
//
//	H_prev = -Dlog(xi) * Ad(e^-1) * Ad(vel^-1)
//	H_vel  = -Dlog(xi) * Ad(e^-1)
//	H_next =  Dlog(xi)
func (f *StablePoseFactor) EvaluateErrorJacobians(previousPose, velocity, nextPose geom.Pose3) (geom.Twist, *mat.Dense, *mat.Dense, *mat.Dense) {
	predicted := previousPose.Compose(velocity)
	e := predicted.Between(nextPose)
	xi := geom.LogSE3(e)
	dlog := geom.LogmapDerivativeSE3(xi)

	h3 := mat.NewDense(6, 6, nil)
	h3.Copy(dlog)

	h2 := mat.NewDense(6, 6, nil)
	h2.Mul(dlog, e.Inverse().Adjoint())
	h2.Scale(-1, h2)

	h1 := mat.NewDense(6, 6, nil)
	h1.Mul(h2, velocity.Inverse().Adjoint())

	return xi, h1, h2, h3
}

// Error returns half the whitened squared residual at the assignment.
func (f *StablePoseFactor) Error(values *graph.Values) (float64, error) {
	prev, vel, next, err := f.poses(values)
	if err != nil {
		return 0, err
	}
	r := f.EvaluateError(prev, vel, next)
	return 0.5 * f.model.SquaredMahalanobis(r[:]), nil
}

// Linearize produces the Gaussian factor at the current assignment.
func (f *StablePoseFactor) Linearize(values *graph.Values) (*graph.JacobianFactor, error) {
	prev, vel, next, err := f.poses(values)
	if err != nil {
		return nil, err
	}
	r, h1, h2, h3 := f.EvaluateErrorJacobians(prev, vel, next)
	b := mat.NewVecDense(6, nil)
	for i := 0; i < 6; i++ {
		b.SetVec(i, -r[i])
	}
	return graph.NewJacobianFactor(
		[]graph.Key{f.previousPoseKey, f.velocityKey, f.nextPoseKey},
		[]*mat.Dense{h1, h2, h3},
		b,
		f.model,
	)
}

func (f *StablePoseFactor) poses(values *graph.Values) (prev, vel, next geom.Pose3, err error) {
	if prev, err = values.Pose3At(f.previousPoseKey); err != nil {
		return
	}
	if vel, err = values.Pose3At(f.velocityKey); err != nil {
		return
	}
	next, err = values.Pose3At(f.nextPoseKey)
	return
}

// Clone returns an independent copy.
func (f *StablePoseFactor) Clone() graph.Factor {
	out := *f
	return &out
}

// Equals reports structural equality within tol.
func (f *StablePoseFactor) Equals(other graph.Factor, tol float64) bool {
	o, ok := other.(*StablePoseFactor)
	if !ok {
		return false
	}
	return f.previousPoseKey == o.previousPoseKey &&
		f.velocityKey == o.velocityKey &&
		f.nextPoseKey == o.nextPoseKey &&
		f.model.Equals(o.model, tol)
}

// String describes the factor.
func (f *StablePoseFactor) String() string {
	return fmt.Sprintf("StablePoseFactor(%v,%v,%v) noise: %s",
		f.previousPoseKey, f.velocityKey, f.nextPoseKey, f.model)
}
