package spatial

import "math"

// Vec3 is a world position. Z is tracked for distance checks but not
// bucketed by the grid.
type Vec3 struct {
	_msgpack struct{} `msgpack:",as_array"`
	X        float64  `yaml:"x"`
	Y        float64  `yaml:"y"`
	Z        float64  `yaml:"z"`
}

func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

// DistSq returns the squared euclidean distance between a and b.
func (a Vec3) DistSq(b Vec3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}

// Finite reports whether no component is NaN or infinite.
func (a Vec3) Finite() bool {
	for _, c := range [3]float64{a.X, a.Y, a.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Equal compares components only.
func (a Vec3) Equal(b Vec3) bool {
	return a.X == b.X && a.Y == b.Y && a.Z == b.Z
}
