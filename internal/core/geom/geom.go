// Package geom provides the 2D floating-point primitives the simulation is
// built on: absolute positions (Point) and displacements (Vector).
//
// Both types have pure value semantics. The only guarded operation is
// normalization of a zero-length vector, which yields the zero vector
// instead of NaN components.
package geom

import "math"

// Point is an absolute position in the simulation plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vector is a 2D displacement. It doubles as velocity, acceleration and
// force, which all transform the same way.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add translates the point by v.
func (p Point) Add(v Vector) Point {
	return Point{X: p.X + v.X, Y: p.Y + v.Y}
}

// Sub returns the vector pointing from q to p.
func (p Point) Sub(q Point) Vector {
	return Vector{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale multiplies both coordinates by f.
func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Add returns the component-wise sum of v and w.
func (v Vector) Add(w Vector) Vector {
	return Vector{X: v.X + w.X, Y: v.Y + w.Y}
}

// Sub returns the component-wise difference of v and w.
func (v Vector) Sub(w Vector) Vector {
	return Vector{X: v.X - w.X, Y: v.Y - w.Y}
}

// Scale multiplies the vector by the scalar f.
func (v Vector) Scale(f float64) Vector {
	return Vector{X: v.X * f, Y: v.Y * f}
}

// Dot returns the dot product of v and w.
func (v Vector) Dot(w Vector) float64 {
	return v.X*w.X + v.Y*w.Y
}

// Len returns the Euclidean norm sqrt(x² + y²).
func (v Vector) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// Unit returns the unit vector in the direction of v.
// The zero vector normalizes to the zero vector.
func (v Vector) Unit() Vector {
	l := v.Len()
	if l == 0 {
		return Vector{}
	}
	return Vector{X: v.X / l, Y: v.Y / l}
}

// IsZero reports whether both components are exactly zero.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0
}
