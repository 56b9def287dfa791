package graph

import (
	"fmt"
	"sort"

	"github.com/banshee-data/trackgraph/internal/geom"
)

// Values holds the current estimate of every pose-valued variable,
// keyed by variable Key. A Values snapshot is what the optimizer hands
// to factors for evaluation and linearization; factors never mutate it.
type Values struct {
	poses map[Key]geom.Pose3
}

// NewValues returns an empty assignment.
func NewValues() *Values {
	return &Values{poses: make(map[Key]geom.Pose3)}
}

// Insert adds a new variable. It is an error to insert a key twice;
// use Update to move an existing estimate.
func (v *Values) Insert(key Key, pose geom.Pose3) error {
	if _, ok := v.poses[key]; ok {
		return fmt.Errorf("values: key %v already present", key)
	}
	v.poses[key] = pose
	return nil
}

// Update replaces the estimate of an existing variable.
func (v *Values) Update(key Key, pose geom.Pose3) error {
	if _, ok := v.poses[key]; !ok {
		return fmt.Errorf("values: key %v not found", key)
	}
	v.poses[key] = pose
	return nil
}

// Pose3At returns the current estimate for key, or an error if the
// assignment does not contain it.
func (v *Values) Pose3At(key Key) (geom.Pose3, error) {
	pose, ok := v.poses[key]
	if !ok {
		return geom.Pose3{}, fmt.Errorf("values: key %v not found", key)
	}
	return pose, nil
}

// Has reports whether the assignment contains key.
func (v *Values) Has(key Key) bool {
	_, ok := v.poses[key]
	return ok
}

// Len returns the number of variables in the assignment.
func (v *Values) Len() int {
	return len(v.poses)
}

// Keys returns the keys in ascending order.
func (v *Values) Keys() []Key {
	keys := make([]Key, 0, len(v.poses))
	for k := range v.poses {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clone returns an independent copy of the assignment.
func (v *Values) Clone() *Values {
	out := NewValues()
	for k, p := range v.poses {
		out.poses[k] = p
	}
	return out
}
