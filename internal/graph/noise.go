package graph

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Diagonal is a diagonal Gaussian noise model described by per-axis
// standard deviations. Whitening divides each residual component by its
// sigma so that squared-error minimization matches maximum likelihood.
type Diagonal struct {
	sigmas    []float64
	invSigmas []float64
}

// NewDiagonal builds a noise model from per-axis standard deviations.
// All sigmas must be strictly positive.
func NewDiagonal(sigmas ...float64) (*Diagonal, error) {
	if len(sigmas) == 0 {
		return nil, fmt.Errorf("noise: no sigmas given")
	}
	d := &Diagonal{
		sigmas:    make([]float64, len(sigmas)),
		invSigmas: make([]float64, len(sigmas)),
	}
	for i, s := range sigmas {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("noise: sigma[%d] = %v must be positive and finite", i, s)
		}
		d.sigmas[i] = s
		d.invSigmas[i] = 1 / s
	}
	return d, nil
}

// NewIsotropic builds a diagonal model with the same sigma on every axis.
func NewIsotropic(dim int, sigma float64) (*Diagonal, error) {
	if dim < 1 {
		return nil, fmt.Errorf("noise: dimension %d must be >= 1", dim)
	}
	sigmas := make([]float64, dim)
	for i := range sigmas {
		sigmas[i] = sigma
	}
	return NewDiagonal(sigmas...)
}

// NewVariances builds a diagonal model from per-axis variances.
func NewVariances(variances ...float64) (*Diagonal, error) {
	sigmas := make([]float64, len(variances))
	for i, v := range variances {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("noise: variance[%d] = %v must be positive and finite", i, v)
		}
		sigmas[i] = math.Sqrt(v)
	}
	return NewDiagonal(sigmas...)
}

// Dim returns the residual dimension of the model.
func (d *Diagonal) Dim() int { return len(d.sigmas) }

// Sigmas returns a copy of the per-axis standard deviations.
func (d *Diagonal) Sigmas() []float64 {
	out := make([]float64, len(d.sigmas))
	copy(out, d.sigmas)
	return out
}

// Whiten scales each residual component by its inverse sigma.
// It panics only on dimension mismatch, which is a programming error.
func (d *Diagonal) Whiten(r []float64) []float64 {
	if len(r) != len(d.invSigmas) {
		panic(fmt.Sprintf("noise: whiten dimension %d != model dimension %d", len(r), len(d.invSigmas)))
	}
	out := make([]float64, len(r))
	for i, c := range r {
		out[i] = c * d.invSigmas[i]
	}
	return out
}

// WhitenVec whitens a dense vector in place into a new vector.
func (d *Diagonal) WhitenVec(r *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(r.Len(), nil)
	for i := 0; i < r.Len(); i++ {
		out.SetVec(i, r.AtVec(i)*d.invSigmas[i])
	}
	return out
}

// WhitenMatrix scales each row of a Jacobian block by its inverse sigma.
func (d *Diagonal) WhitenMatrix(a *mat.Dense) *mat.Dense {
	rows, cols := a.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, a.At(i, j)*d.invSigmas[i])
		}
	}
	return out
}

// SquaredMahalanobis returns the whitened squared norm of r.
func (d *Diagonal) SquaredMahalanobis(r []float64) float64 {
	w := d.Whiten(r)
	var s float64
	for _, c := range w {
		s += c * c
	}
	return s
}

// Equals reports whether two models have the same sigmas within tol.
func (d *Diagonal) Equals(o *Diagonal, tol float64) bool {
	if o == nil || len(d.sigmas) != len(o.sigmas) {
		return false
	}
	for i := range d.sigmas {
		if math.Abs(d.sigmas[i]-o.sigmas[i]) > tol {
			return false
		}
	}
	return true
}

// String formats the model's sigmas.
func (d *Diagonal) String() string {
	return fmt.Sprintf("Diagonal(sigmas=%v)", d.sigmas)
}
