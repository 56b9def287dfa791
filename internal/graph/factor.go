package graph

// Factor is the nonlinear-factor contract the optimizer drives.
// Implementations are immutable after construction and evaluate purely
// from the supplied assignment, so a single instance may be evaluated
// from multiple goroutines as long as construction has completed first.
type Factor interface {
	// Keys returns the variable keys the factor constrains, in a fixed
	// order defined at construction.
	Keys() []Key

	// Dim returns the residual dimension.
	Dim() int

	// Error returns the factor's scalar cost at the given assignment.
	// It fails if the assignment lacks any required key.
	Error(values *Values) (float64, error)

	// Linearize returns a Gaussian approximation of the factor around
	// the given assignment.
	Linearize(values *Values) (*JacobianFactor, error)

	// Clone returns an independent copy sharing no mutable state.
	Clone() Factor

	// Equals reports structural equality within the given tolerance.
	Equals(other Factor, tol float64) bool

	// String describes the factor for debugging.
	String() string
}
