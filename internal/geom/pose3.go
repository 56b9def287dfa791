package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Twist is an SE(3) tangent vector ordered (wx, wy, wz, vx, vy, vz):
// rotation components first, then translation.
type Twist [6]float64

// Omega returns the rotation part of the twist.
func (x Twist) Omega() Vec3 { return Vec3{x[0], x[1], x[2]} }

// V returns the translation part of the twist.
func (x Twist) V() Vec3 { return Vec3{x[3], x[4], x[5]} }

// Norm returns the Euclidean length of the twist.
func (x Twist) Norm() float64 {
	var s float64
	for _, c := range x {
		s += c * c
	}
	return math.Sqrt(s)
}

// Vec returns the twist as a dense vector for linear-algebra consumers.
func (x Twist) Vec() *mat.VecDense {
	return mat.NewVecDense(6, []float64{x[0], x[1], x[2], x[3], x[4], x[5]})
}

// Pose3 is a rigid transform: rotation R followed by translation T.
// Composing poses composes transforms; the identity pose leaves points
// unchanged.
type Pose3 struct {
	R Rot3
	T Vec3
}

// IdentityPose3 returns the identity transform.
func IdentityPose3() Pose3 {
	return Pose3{R: IdentityRot3()}
}

// NewPose3 builds a pose from a rotation and a translation.
func NewPose3(r Rot3, t Vec3) Pose3 {
	return Pose3{R: r, T: t}
}

// Compose returns the pose p * q.
func (p Pose3) Compose(q Pose3) Pose3 {
	return Pose3{
		R: p.R.Compose(q.R),
		T: p.T.Add(p.R.Rotate(q.T)),
	}
}

// Inverse returns the inverse transform.
func (p Pose3) Inverse() Pose3 {
	rInv := p.R.Inverse()
	return Pose3{R: rInv, T: rInv.Rotate(p.T.Neg())}
}

// Between returns p^-1 * q, the pose of q expressed in p's frame.
func (p Pose3) Between(q Pose3) Pose3 {
	return p.Inverse().Compose(q)
}

// TransformFrom maps a point from p's local frame into the world frame.
func (p Pose3) TransformFrom(local Vec3) Vec3 {
	return p.R.Rotate(local).Add(p.T)
}

// TransformTo maps a world-frame point into p's local frame.
func (p Pose3) TransformTo(world Vec3) Vec3 {
	return p.R.Unrotate(world.Sub(p.T))
}

// Equals reports whether p and q agree within tol in rotation entries
// and translation components.
func (p Pose3) Equals(q Pose3, tol float64) bool {
	return p.R.Equals(q.R, tol) && p.T.Equals(q.T, tol)
}

// String formats the pose as its rotation rows and translation.
func (p Pose3) String() string {
	m := p.R.Mat()
	return fmt.Sprintf("R:[%.4f %.4f %.4f; %.4f %.4f %.4f; %.4f %.4f %.4f] t:[%.4f %.4f %.4f]",
		m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8],
		p.T[0], p.T[1], p.T[2])
}

// ExpSE3 is the exponential map of SE(3): R = ExpSO3(w) and
// T = Jl(w) * v, with Jl the SO(3) left Jacobian.
func ExpSE3(xi Twist) Pose3 {
	w := xi.Omega()
	return Pose3{
		R: ExpSO3(w),
		T: LeftJacobianSO3(w).MulVec(xi.V()),
	}
}

// LogSE3 is the logarithm map of SE(3), inverse of ExpSE3.
func LogSE3(p Pose3) Twist {
	w := LogSO3(p.R)
	v := LeftJacobianInvSO3(w).MulVec(p.T)
	return Twist{w[0], w[1], w[2], v[0], v[1], v[2]}
}

// Adjoint returns the 6x6 adjoint map of p, satisfying
// p * ExpSE3(xi) * p^-1 == ExpSE3(Adjoint(p) * xi).
func (p Pose3) Adjoint() *mat.Dense {
	ad := mat.NewDense(6, 6, nil)
	r := p.R.Mat()
	tr := Skew(p.T).Mul(r)
	setBlock3(ad, 0, 0, r)
	setBlock3(ad, 3, 3, r)
	setBlock3(ad, 3, 0, tr)
	return ad
}

// LogmapDerivativeSE3 returns the derivative of LogSE3 with respect to a
// right perturbation of its argument, evaluated at xi = LogSE3(p):
// LogSE3(p * ExpSE3(d)) ~= xi + LogmapDerivativeSE3(xi) * d.
// It is the inverse right Jacobian of the SE(3) exponential map.
func LogmapDerivativeSE3(xi Twist) *mat.Dense {
	w := xi.Omega()
	jwInv := RightJacobianInvSO3(w)
	q := expmapQ(xi)
	// -JwInv * Q * JwInv
	lower := jwInv.Mul(q).Mul(jwInv).Scale(-1)

	out := mat.NewDense(6, 6, nil)
	setBlock3(out, 0, 0, jwInv)
	setBlock3(out, 3, 3, jwInv)
	setBlock3(out, 3, 0, lower)
	return out
}

// expmapQ computes the translation-rotation coupling block Q of the SE(3)
// right Jacobian Jr(xi) = [[Jr(w), 0], [Q, Jr(w)]] (Barfoot's closed form).
func expmapQ(xi Twist) Mat3 {
	w := xi.Omega()
	wx := Skew(w)
	vx := Skew(xi.V())
	theta2 := w.Dot(w)

	wv := wx.Mul(vx)
	vw := vx.Mul(wx)
	wvw := wv.Mul(wx)

	t1 := wv.Add(vw).Sub(wvw)                        // WV + VW - WVW
	t2 := wx.Mul(wv).Add(vw.Mul(wx)).Sub(wvw.Scale(3)) // W^2 V + V W^2 - 3 WVW
	t3 := wvw.Mul(wx).Add(wx.Mul(wvw))               // WVW^2 + W^2 VW

	var c1, c2, c3 float64
	if theta2 < smallAngleThreshold {
		c1 = 1.0 / 6.0
		c2 = -1.0 / 24.0
		c3 = -1.0 / 60.0
	} else {
		theta := math.Sqrt(theta2)
		theta3 := theta2 * theta
		theta4 := theta2 * theta2
		theta5 := theta4 * theta
		sin := math.Sin(theta)
		cos := math.Cos(theta)
		c1 = (theta - sin) / theta3
		c2 = (1 - theta2/2 - cos) / theta4
		c3 = c2 - 3*(theta-sin-theta3/6)/theta5
	}

	return vx.Scale(-0.5).Add(t1.Scale(c1)).Add(t2.Scale(c2)).Sub(t3.Scale(0.5 * c3))
}

// setBlock3 writes a Mat3 into dst at the given row/column offset.
func setBlock3(dst *mat.Dense, row, col int, m Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			dst.Set(row+i, col+j, m.At(i, j))
		}
	}
}
