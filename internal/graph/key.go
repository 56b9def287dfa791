// Package graph defines the optimizer-facing contracts shared by all
// nonlinear factors: variable keys, the assignment container holding
// current pose estimates, whitening noise models, the linearized
// (Jacobian) factor consumed by the sparse solver, and the Factor
// interface the nonlinear factors implement.
package graph

import "fmt"

// Key identifies a variable in the pose graph. The top byte carries a
// symbol character (for example 'x' for observer poses, 'o' for object
// poses, 'v' for velocities) and the remaining bits an index.
type Key uint64

const symbolShift = 56

// Symbol builds a Key from a character and an index.
func Symbol(c byte, index uint64) Key {
	return Key(uint64(c)<<symbolShift | (index & ((1 << symbolShift) - 1)))
}

// Chr returns the symbol character of the key.
func (k Key) Chr() byte {
	return byte(k >> symbolShift)
}

// Index returns the index part of the key.
func (k Key) Index() uint64 {
	return uint64(k) & ((1 << symbolShift) - 1)
}

// String formats the key as its symbol character followed by the index,
// falling back to the raw integer for keys without a printable symbol.
func (k Key) String() string {
	c := k.Chr()
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
		return fmt.Sprintf("%c%d", c, k.Index())
	}
	return fmt.Sprintf("%d", uint64(k))
}
