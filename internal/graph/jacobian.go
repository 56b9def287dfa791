package graph

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// JacobianFactor is one linearized constraint: per-variable Jacobian
// blocks A_k and a right-hand side b such that the solver minimizes
// || W * (sum_k A_k * delta_k - b) ||^2 over tangent increments delta_k,
// where W is the whitening transform of the attached noise model.
type JacobianFactor struct {
	keys   []Key
	blocks map[Key]*mat.Dense
	b      *mat.VecDense
	model  *Diagonal
}

// NewJacobianFactor assembles a linear factor. Keys and blocks are
// parallel; every block must have model.Dim() rows.
func NewJacobianFactor(keys []Key, blocks []*mat.Dense, b *mat.VecDense, model *Diagonal) (*JacobianFactor, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("jacobian factor: no keys")
	}
	if len(keys) != len(blocks) {
		return nil, fmt.Errorf("jacobian factor: %d keys but %d blocks", len(keys), len(blocks))
	}
	if model == nil {
		return nil, fmt.Errorf("jacobian factor: nil noise model")
	}
	if b.Len() != model.Dim() {
		return nil, fmt.Errorf("jacobian factor: rhs dimension %d != model dimension %d", b.Len(), model.Dim())
	}
	jf := &JacobianFactor{
		keys:   append([]Key(nil), keys...),
		blocks: make(map[Key]*mat.Dense, len(keys)),
		b:      b,
		model:  model,
	}
	for i, k := range keys {
		rows, _ := blocks[i].Dims()
		if rows != model.Dim() {
			return nil, fmt.Errorf("jacobian factor: block %v has %d rows, want %d", k, rows, model.Dim())
		}
		if _, dup := jf.blocks[k]; dup {
			return nil, fmt.Errorf("jacobian factor: duplicate key %v", k)
		}
		jf.blocks[k] = blocks[i]
	}
	return jf, nil
}

// Keys returns the variable keys in block order.
func (jf *JacobianFactor) Keys() []Key {
	return append([]Key(nil), jf.keys...)
}

// Block returns the raw (unwhitened) Jacobian block for key.
func (jf *JacobianFactor) Block(key Key) (*mat.Dense, bool) {
	bl, ok := jf.blocks[key]
	return bl, ok
}

// RHS returns the raw right-hand side vector.
func (jf *JacobianFactor) RHS() *mat.VecDense { return jf.b }

// Model returns the attached noise model.
func (jf *JacobianFactor) Model() *Diagonal { return jf.model }

// WhitenedSystem stacks the whitened blocks into a single dense system
// (A, b) with the blocks laid out left to right in key order.
func (jf *JacobianFactor) WhitenedSystem() (*mat.Dense, *mat.VecDense) {
	rows := jf.model.Dim()
	cols := 0
	widths := make([]int, len(jf.keys))
	for i, k := range jf.keys {
		_, c := jf.blocks[k].Dims()
		widths[i] = c
		cols += c
	}
	a := mat.NewDense(rows, cols, nil)
	off := 0
	for i, k := range jf.keys {
		wb := jf.model.WhitenMatrix(jf.blocks[k])
		a.Slice(0, rows, off, off+widths[i]).(*mat.Dense).Copy(wb)
		off += widths[i]
	}
	return a, jf.model.WhitenVec(jf.b)
}

// Error returns half the whitened squared norm of (sum_k A_k delta_k - b)
// at delta = 0, i.e. the cost the linearized constraint contributes at
// the linearization point.
func (jf *JacobianFactor) Error() float64 {
	r := make([]float64, jf.b.Len())
	for i := range r {
		r[i] = -jf.b.AtVec(i)
	}
	return 0.5 * jf.model.SquaredMahalanobis(r)
}
