package core

import "math"

// DriftTolerance is the largest gap, in seconds, between a viewer's local
// playback position and the authoritative position before the viewer has to
// hard-seek. Small gaps are left alone to avoid visible stutter.
const DriftTolerance = 3.0

// Drift returns the absolute difference between local and authoritative
// playback positions.
func Drift(local, authoritative float64) float64 {
	return math.Abs(local - authoritative)
}

// DriftExceeded reports whether the gap is large enough to force a seek.
func DriftExceeded(local, authoritative float64) bool {
	return Drift(local, authoritative) >= DriftTolerance
}
