package geom

import "math"

// rotationTolerance bounds the orthonormality check in IsValidRotation.
const rotationTolerance = 0.01

// smallAngleThreshold switches the exp/log maps and their Jacobians to
// series expansions once theta^2 falls below it.
const smallAngleThreshold = 1e-10

// Rot3 is a rotation matrix, row-major like Mat3.
type Rot3 Mat3

// IdentityRot3 returns the identity rotation.
func IdentityRot3() Rot3 {
	return Rot3(Identity3())
}

// Mat returns the rotation as a plain Mat3.
func (r Rot3) Mat() Mat3 { return Mat3(r) }

// Compose returns the rotation r * s.
func (r Rot3) Compose(s Rot3) Rot3 {
	return Rot3(Mat3(r).Mul(Mat3(s)))
}

// Inverse returns the inverse rotation, which for a rotation matrix is
// its transpose.
func (r Rot3) Inverse() Rot3 {
	return Rot3(Mat3(r).Transpose())
}

// Rotate applies the rotation to v.
func (r Rot3) Rotate(v Vec3) Vec3 {
	return Mat3(r).MulVec(v)
}

// Unrotate applies the inverse rotation to v.
func (r Rot3) Unrotate(v Vec3) Vec3 {
	return Mat3(r).Transpose().MulVec(v)
}

// Equals reports whether r and s agree element-wise within tol.
func (r Rot3) Equals(s Rot3, tol float64) bool {
	return Mat3(r).Equals(Mat3(s), tol)
}

// IsValidRotation checks that r is a proper rotation: determinant near +1
// and columns orthonormal within rotationTolerance.
func (r Rot3) IsValidRotation() bool {
	if math.Abs(Mat3(r).Det()-1.0) > rotationTolerance {
		return false
	}
	rrt := Mat3(r).Mul(Mat3(r).Transpose())
	return rrt.Equals(Identity3(), rotationTolerance)
}

// ExpSO3 is the exponential map of SO(3): it converts an axis-angle
// vector w (axis * angle, radians) into a rotation matrix via the
// Rodrigues formula.
func ExpSO3(w Vec3) Rot3 {
	theta2 := w.Dot(w)
	wx := Skew(w)
	if theta2 < smallAngleThreshold {
		// I + W + W^2/2
		m := Identity3().Add(wx).Add(wx.Mul(wx).Scale(0.5))
		return Rot3(m)
	}
	theta := math.Sqrt(theta2)
	a := math.Sin(theta) / theta
	b := (1 - math.Cos(theta)) / theta2
	m := Identity3().Add(wx.Scale(a)).Add(wx.Mul(wx).Scale(b))
	return Rot3(m)
}

// LogSO3 is the logarithm map of SO(3): the axis-angle vector w such
// that ExpSO3(w) == r. The returned angle is in [0, pi].
func LogSO3(r Rot3) Vec3 {
	m := Mat3(r)
	tr := m.Trace()

	// Antisymmetric part encodes sin(theta) * axis.
	anti := Vec3{
		m.At(2, 1) - m.At(1, 2),
		m.At(0, 2) - m.At(2, 0),
		m.At(1, 0) - m.At(0, 1),
	}

	if tr+1.0 < 1e-10 {
		// Angle near pi, where the antisymmetric part vanishes. At pi the
		// rotation satisfies R_ii = 2*a_i^2 - 1 and R_ij = 2*a_i*a_j for
		// rotation axis a, so recover the axis from the dominant diagonal.
		var a Vec3
		switch {
		case m.At(2, 2) >= m.At(1, 1) && m.At(2, 2) >= m.At(0, 0):
			a[2] = math.Sqrt(math.Max(0, (m.At(2, 2)+1)/2))
			a[0] = m.At(0, 2) / (2 * a[2])
			a[1] = m.At(1, 2) / (2 * a[2])
		case m.At(1, 1) >= m.At(0, 0):
			a[1] = math.Sqrt(math.Max(0, (m.At(1, 1)+1)/2))
			a[0] = m.At(0, 1) / (2 * a[1])
			a[2] = m.At(2, 1) / (2 * a[1])
		default:
			a[0] = math.Sqrt(math.Max(0, (m.At(0, 0)+1)/2))
			a[1] = m.At(1, 0) / (2 * a[0])
			a[2] = m.At(2, 0) / (2 * a[0])
		}
		n := a.Norm()
		if n == 0 {
			return Vec3{math.Pi, 0, 0}
		}
		return a.Scale(math.Pi / n)
	}

	// cos(theta) = (tr - 1) / 2, clamped against rounding.
	c := (tr - 1) / 2
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	theta := math.Acos(c)
	if theta < 1e-10 {
		// w ~ anti/2 for small angles.
		return anti.Scale(0.5)
	}
	return anti.Scale(theta / (2 * math.Sin(theta)))
}

// so3JacobianCoeffs returns the (b, c) coefficients of the SO(3) left
// Jacobian Jl = I + b*W + c*W^2 for the angle implied by theta2 = |w|^2.
func so3JacobianCoeffs(theta2 float64) (b, c float64) {
	if theta2 < smallAngleThreshold {
		return 0.5, 1.0 / 6.0
	}
	theta := math.Sqrt(theta2)
	b = (1 - math.Cos(theta)) / theta2
	c = (theta - math.Sin(theta)) / (theta2 * theta)
	return b, c
}

// LeftJacobianSO3 returns the left Jacobian of the SO(3) exponential map
// at w: Jl = I + (1-cos)/t^2 W + (t-sin)/t^3 W^2.
func LeftJacobianSO3(w Vec3) Mat3 {
	b, c := so3JacobianCoeffs(w.Dot(w))
	wx := Skew(w)
	return Identity3().Add(wx.Scale(b)).Add(wx.Mul(wx).Scale(c))
}

// LeftJacobianInvSO3 returns the inverse of LeftJacobianSO3(w).
func LeftJacobianInvSO3(w Vec3) Mat3 {
	theta2 := w.Dot(w)
	wx := Skew(w)
	var c float64
	if theta2 < smallAngleThreshold {
		c = 1.0 / 12.0
	} else {
		theta := math.Sqrt(theta2)
		c = 1/theta2 - (1+math.Cos(theta))/(2*theta*math.Sin(theta))
	}
	return Identity3().Add(wx.Scale(-0.5)).Add(wx.Mul(wx).Scale(c))
}

// RightJacobianSO3 returns the right Jacobian of the SO(3) exponential
// map at w, equal to the left Jacobian evaluated at -w.
func RightJacobianSO3(w Vec3) Mat3 {
	return LeftJacobianSO3(w.Neg())
}

// RightJacobianInvSO3 returns the inverse of RightJacobianSO3(w).
func RightJacobianInvSO3(w Vec3) Mat3 {
	return LeftJacobianInvSO3(w.Neg())
}
