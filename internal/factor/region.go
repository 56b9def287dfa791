// Package factor implements the measurement and motion-constraint
// factors of the object-tracking pose graph: a max-mixture detection
// factor that selects the best-explaining Gaussian hypothesis at every
// evaluation, a constant-velocity prior between consecutive poses, and
// a three-variable stability constraint tying previous pose, velocity,
// and next pose together.
package factor

import "github.com/banshee-data/trackgraph/internal/geom"

// Region describes one sensed bounding region from the perception
// front-end: the detected box's center pose in the observer frame, its
// extent, a class label, and the detector's confidence. Factors read it
// only at construction time.
type Region struct {
	Pose       geom.Pose3 // center pose, observer frame
	Extent     geom.Vec3  // box dimensions (meters)
	Label      int
	Confidence float64
}

// Center returns the translation of the region's center pose.
func (r Region) Center() geom.Vec3 {
	return r.Pose.T
}
