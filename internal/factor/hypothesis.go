package factor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trackgraph/internal/geom"
	"github.com/banshee-data/trackgraph/internal/graph"
)

// DefaultVariance is the isotropic position variance assumed for a
// detection when the perception front-end provides none.
const DefaultVariance = 1e-2

// Hypothesis is one Gaussian explanation of a detection: a mean
// position, a diagonal covariance with its information and
// square-root-information forms, and a confidence weight in (0, 1].
// A Hypothesis is immutable after construction.
type Hypothesis struct {
	mu       geom.Vec3
	varVec   geom.Vec3
	cov      *mat.SymDense
	info     *mat.SymDense
	sqrtInfo *mat.Dense

	// logDetCov is cached for the normalization term of Error.
	logDetCov float64

	w      float64
	region Region
	noise  *graph.Diagonal
}

// NewHypothesis builds a hypothesis from a detection region, per-axis
// position variances, and a confidence weight. The mean is the region's
// center. Covariance, information, and square-root information are
// derived once here; construction fails on non-positive variances,
// weights outside (0, 1], or a covariance that does not factorize.
func NewHypothesis(region Region, variances geom.Vec3, w float64) (*Hypothesis, error) {
	if w <= 0 || w > 1 || math.IsNaN(w) {
		return nil, fmt.Errorf("hypothesis: weight %v outside (0, 1]", w)
	}
	for i, v := range variances {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("hypothesis: variance[%d] = %v must be positive and finite", i, v)
		}
	}

	cov := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		cov.SetSym(i, i, variances[i])
	}

	var cholCov mat.Cholesky
	if !cholCov.Factorize(cov) {
		return nil, fmt.Errorf("hypothesis: covariance not positive definite")
	}

	info := mat.NewSymDense(3, nil)
	if err := cholCov.InverseTo(info); err != nil {
		return nil, fmt.Errorf("hypothesis: invert covariance: %w", err)
	}

	var cholInfo mat.Cholesky
	if !cholInfo.Factorize(info) {
		return nil, fmt.Errorf("hypothesis: information matrix not positive definite")
	}
	upper := mat.NewTriDense(3, mat.Upper, nil)
	cholInfo.UTo(upper)
	// Stored lower-triangular so sqrtInfo * sqrtInfo^T == info.
	sqrtInfo := mat.NewDense(3, 3, nil)
	sqrtInfo.Copy(upper.T())

	noise, err := graph.NewVariances(variances[0], variances[1], variances[2])
	if err != nil {
		return nil, fmt.Errorf("hypothesis: %w", err)
	}

	return &Hypothesis{
		mu:        region.Center(),
		varVec:    variances,
		cov:       cov,
		info:      info,
		sqrtInfo:  sqrtInfo,
		logDetCov: cholCov.LogDet(),
		w:         w,
		region:    region,
		noise:     noise,
	}, nil
}

// NewHypothesisIsotropic builds a hypothesis with the same variance on
// every axis.
func NewHypothesisIsotropic(region Region, variance, w float64) (*Hypothesis, error) {
	return NewHypothesis(region, geom.Vec3{variance, variance, variance}, w)
}

// Error evaluates the hypothesis's negative-log-likelihood-style cost at
// position x:
//
//	0.5 * (x-mu)^T Info (x-mu) + 0.5 * log det(Cov) - log(w) + gamma
//
// The Mahalanobis term measures how well the hypothesis explains x, the
// log-determinant term makes hypotheses with different spreads
// comparable, the weight term penalizes low-confidence hypotheses
// uniformly, and gamma is a shared normalization floor supplied by the
// owning factor. The result is finite for any finite x.
func (h *Hypothesis) Error(x geom.Vec3, gamma float64) float64 {
	dx := x.Sub(h.mu)
	dv := mat.NewVecDense(3, []float64{dx[0], dx[1], dx[2]})
	maha := mat.Inner(dv, h.info, dv)
	return 0.5*maha + 0.5*h.logDetCov - math.Log(h.w) + gamma
}

// NormalizationTerm returns the x-independent part of Error at gamma 0:
// 0.5 * log det(Cov) - log(w). The owning factor uses it to choose a
// gamma that keeps every hypothesis cost non-negative.
func (h *Hypothesis) NormalizationTerm() float64 {
	return 0.5*h.logDetCov - math.Log(h.w)
}

// Mu returns the mean position.
func (h *Hypothesis) Mu() geom.Vec3 { return h.mu }

// VarianceVec returns the per-axis variances.
func (h *Hypothesis) VarianceVec() geom.Vec3 { return h.varVec }

// Covariance returns the 3x3 covariance matrix.
func (h *Hypothesis) Covariance() *mat.SymDense {
	out := mat.NewSymDense(3, nil)
	out.CopySym(h.cov)
	return out
}

// Information returns the 3x3 information (inverse covariance) matrix.
func (h *Hypothesis) Information() *mat.SymDense {
	out := mat.NewSymDense(3, nil)
	out.CopySym(h.info)
	return out
}

// SqrtInformation returns the lower-triangular square root L of the
// information matrix, L * L^T == Information().
func (h *Hypothesis) SqrtInformation() *mat.Dense {
	out := mat.NewDense(3, 3, nil)
	out.Copy(h.sqrtInfo)
	return out
}

// Weight returns the prior confidence weight.
func (h *Hypothesis) Weight() float64 { return h.w }

// Region returns the originating detection region.
func (h *Hypothesis) Region() Region { return h.region }

// Noise returns the diagonal whitening model matching the covariance.
func (h *Hypothesis) Noise() *graph.Diagonal { return h.noise }

// Pose returns the region's center pose, the detection expressed as a
// pose in the observer frame.
func (h *Hypothesis) Pose() geom.Pose3 { return h.region.Pose }

// Equals reports whether two hypotheses have the same mean, variances,
// and weight within tol.
func (h *Hypothesis) Equals(o *Hypothesis, tol float64) bool {
	if o == nil {
		return false
	}
	return h.mu.Equals(o.mu, tol) &&
		h.varVec.Equals(o.varVec, tol) &&
		math.Abs(h.w-o.w) <= tol
}

// String summarizes the hypothesis.
func (h *Hypothesis) String() string {
	return fmt.Sprintf("Hypothesis(mu=[%.3f %.3f %.3f] var=[%.3g %.3g %.3g] w=%.3f)",
		h.mu[0], h.mu[1], h.mu[2], h.varVec[0], h.varVec[1], h.varVec[2], h.w)
}
