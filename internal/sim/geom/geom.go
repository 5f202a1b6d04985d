package geom

import "math"

// Vec3 is a world-space position. The grid plane is XZ; Y is carried through untouched.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Cell is a grid coordinate on the XZ plane.
type Cell struct {
	X int `json:"x" yaml:"x"`
	Z int `json:"z" yaml:"z"`
}

func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z} }
func (a Vec3) Scale(s float64) Vec3 {
	return Vec3{X: a.X * s, Y: a.Y * s, Z: a.Z * s}
}

func (a Vec3) Len() float64 { return math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z) }

// Dist is the full 3D distance.
func Dist(a, b Vec3) float64 { return a.Sub(b).Len() }

// DistXZ ignores height; all range checks in the simulation use it.
func DistXZ(a, b Vec3) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// Toward returns the point reached by moving from a toward b by at most step.
func Toward(a, b Vec3, step float64) Vec3 {
	d := b.Sub(a)
	n := d.Len()
	if n <= step || n == 0 {
		return b
	}
	return a.Add(d.Scale(step / n))
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
