// Package trackmodel defines the immutable geometric and identity primitives
// shared by the filter, association, fusion, tracker, and coordinator
// subsystems.
package trackmodel

import "math"

// Position3D is an immutable position estimate in meters.
type Position3D struct {
	X, Y, Z float64
}

// IsFinite reports whether every component is a finite float.
func (p Position3D) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}

// Sub returns p - q.
func (p Position3D) Sub(q Position3D) Position3D {
	return Position3D{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Add returns p + q.
func (p Position3D) Add(q Position3D) Position3D {
	return Position3D{X: p.X + q.X, Y: p.Y + q.Y, Z: p.Z + q.Z}
}

// Scale returns p scaled by s.
func (p Position3D) Scale(s float64) Position3D {
	return Position3D{X: p.X * s, Y: p.Y * s, Z: p.Z * s}
}

// Norm returns the Euclidean distance from the origin.
func (p Position3D) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// Distance returns the Euclidean distance between two positions.
func (p Position3D) Distance(q Position3D) float64 {
	return p.Sub(q).Norm()
}

// Velocity3D is an immutable velocity estimate in meters/second.
type Velocity3D struct {
	VX, VY, VZ float64
}

// IsFinite reports whether every component is a finite float.
func (v Velocity3D) IsFinite() bool {
	return isFinite(v.VX) && isFinite(v.VY) && isFinite(v.VZ)
}

// Magnitude returns the speed represented by this velocity. Always >= 0.
func (v Velocity3D) Magnitude() float64 {
	return math.Sqrt(v.VX*v.VX + v.VY*v.VY + v.VZ*v.VZ)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
