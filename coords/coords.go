// Package coords provides planar and spherical coordinate helpers for
// vehicle guidance in a local north-east-down frame (x north, y east, z down).
package coords

import (
	"math"

	"github.com/golang/geo/r3"
)

// ToPolar converts planar XY coordinates to an angle and a norm.
func ToPolar(x, y float64) (angle, norm float64) {
	return math.Atan2(y, x), math.Hypot(x, y)
}

// BearingAndRange returns the bearing and horizontal range of point in
// relation to origin. Only the XY components are considered.
func BearingAndRange(origin, point r3.Vector) (bearing, rng float64) {
	return ToPolar(point.X-origin.X, point.Y-origin.Y)
}

// Bearing returns the bearing of point in relation to origin.
func Bearing(origin, point r3.Vector) float64 {
	return math.Atan2(point.Y-origin.Y, point.X-origin.X)
}

// Range returns the horizontal distance between two points.
func Range(a, b r3.Vector) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Displace moves point by the given bearing and range in the horizontal plane.
func Displace(point r3.Vector, bearing, rng float64) r3.Vector {
	point.X += rng * math.Cos(bearing)
	point.Y += rng * math.Sin(bearing)
	return point
}

// PointAtBearingAndRange returns the point at the given bearing and range
// from origin, keeping origin's Z coordinate.
func PointAtBearingAndRange(origin r3.Vector, bearing, rng float64) r3.Vector {
	return r3.Vector{
		X: origin.X + rng*math.Cos(bearing),
		Y: origin.Y + rng*math.Sin(bearing),
		Z: origin.Z,
	}
}

// TrackPosition decomposes point into along-track (x) and cross-track (y)
// positions for a track defined by an origin and an orientation.
func TrackPosition(origin r3.Vector, orientation float64, point r3.Vector) (along, cross float64) {
	b, r := BearingAndRange(origin, point)
	b -= orientation
	return r * math.Cos(b), r * math.Sin(b)
}

// SphericalToCartesian converts a vector in spherical coordinates
// (norm, azimuth, elevation) to Cartesian coordinates.
func SphericalToCartesian(norm, azimuth, elevation float64) r3.Vector {
	a := norm * math.Cos(elevation)
	return r3.Vector{
		X: a * math.Cos(azimuth),
		Y: a * math.Sin(azimuth),
		Z: norm * math.Sin(elevation),
	}
}

// NormalizeRadians reduces an angle to the interval (-pi, pi].
func NormalizeRadians(angle float64) float64 {
	angle = math.Mod(angle, 2*math.Pi)
	switch {
	case angle > math.Pi:
		angle -= 2 * math.Pi
	case angle <= -math.Pi:
		angle += 2 * math.Pi
	}
	return angle
}
