// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common numeric test helpers to reduce code
// duplication across test files: closeness assertions for vectors and
// matrices, and central-difference Jacobians for verifying analytic
// derivatives.
package testutil

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertNear checks that got is within tol of want.
func AssertNear(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("value = %v, want %v (tol %v)", got, want, tol)
	}
}

// AssertVecNear checks that two float slices agree component-wise
// within tol.
func AssertVecNear(t *testing.T, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("vector length = %d, want %d", len(got), len(want))
	}
	for i := range got {
		if math.IsNaN(got[i]) || math.Abs(got[i]-want[i]) > tol {
			t.Errorf("vector[%d] = %v, want %v (tol %v)", i, got[i], want[i], tol)
		}
	}
}

// AssertMatNear checks that two matrices agree element-wise within tol.
func AssertMatNear(t *testing.T, got, want mat.Matrix, tol float64) {
	t.Helper()
	gr, gc := got.Dims()
	wr, wc := want.Dims()
	if gr != wr || gc != wc {
		t.Fatalf("matrix dims = %dx%d, want %dx%d", gr, gc, wr, wc)
	}
	for i := 0; i < gr; i++ {
		for j := 0; j < gc; j++ {
			g, w := got.At(i, j), want.At(i, j)
			if math.IsNaN(g) || math.Abs(g-w) > tol {
				t.Errorf("matrix[%d,%d] = %v, want %v (tol %v)", i, j, g, w, tol)
			}
		}
	}
}

// NumericalJacobian computes the central-difference Jacobian of f at
// the origin of an inDim-dimensional perturbation: column k holds
// (f(h*e_k) - f(-h*e_k)) / (2h). The caller's f applies the
// perturbation to whatever underlying state it closes over.
func NumericalJacobian(f func(delta []float64) []float64, inDim int, h float64) *mat.Dense {
	probe := f(make([]float64, inDim))
	out := mat.NewDense(len(probe), inDim, nil)
	for k := 0; k < inDim; k++ {
		plus := make([]float64, inDim)
		minus := make([]float64, inDim)
		plus[k] = h
		minus[k] = -h
		fp := f(plus)
		fm := f(minus)
		for i := range fp {
			out.Set(i, k, (fp[i]-fm[i])/(2*h))
		}
	}
	return out
}
