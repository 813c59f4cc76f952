package playback

import (
	"math"

	"github.com/unklstewy/flight-playback/pkg/coordinates"
	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

// Position is one active flight at a query instant.
type Position struct {
	Flight *trajectory.Flight

	Longitude float64
	Latitude  float64

	// Altitude in meters, rounded to the nearest meter when interpolated.
	// 0 when either neighbouring waypoint had no altitude.
	Altitude float64

	// Progress through the flight's [start, end] window, in [0, 1]
	Progress float64

	// Bearing in degrees [0, 360) toward the next waypoint
	Bearing float64
}

// Geographic returns the position as a coordinates.Geographic.
func (p Position) Geographic() coordinates.Geographic {
	return coordinates.Geographic{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Altitude:  p.Altitude,
	}
}

// positionOf computes the flight's position at instant (Unix ms). ok is
// false when the flight is not active then, or has no waypoints.
func positionOf(f *trajectory.Flight, at int64) (Position, bool) {
	start, end, ok := f.Window()
	if !ok || at < start || at > end {
		return Position{}, false
	}
	if len(f.Waypoints) == 0 {
		return Position{}, false
	}

	p := Interpolate(f.Waypoints, Progress(at, start, end))
	p.Flight = f
	return p, true
}

// Progress returns how far instant is through [start, end], all in Unix
// ms, clamped to [0, 1]. A zero-length window counts as complete.
func Progress(at, start, end int64) float64 {
	duration := end - start
	if duration <= 0 {
		return 1.0
	}
	progress := float64(at-start) / float64(duration)
	return math.Max(0, math.Min(1, progress))
}

// Interpolate places progress along waypoints, which are spaced evenly in
// index space: waypoint i of n sits at progress i/(n-1). The returned
// Position has no Flight set.
//
// Between two waypoints longitude, latitude and altitude are interpolated
// linearly. At progress 1 the position is exactly the last waypoint. The
// bearing points from the resulting position toward the following
// waypoint, and is 0 when there is none. waypoints must not be empty.
func Interpolate(waypoints []trajectory.Waypoint, progress float64) Position {
	progress = math.Max(0, math.Min(1, progress))
	n := len(waypoints)

	if n == 1 {
		wp := waypoints[0]
		return Position{
			Longitude: wp.Longitude,
			Latitude:  wp.Latitude,
			Altitude:  wp.Altitude,
			Progress:  progress,
		}
	}

	target := progress * float64(n-1)
	idx := int(math.Floor(target))

	var p Position
	if idx >= n-1 {
		idx = n - 1
		wp := waypoints[idx]
		p = Position{Longitude: wp.Longitude, Latitude: wp.Latitude, Altitude: wp.Altitude}
	} else {
		a, b := waypoints[idx], waypoints[idx+1]
		t := target - float64(idx)
		p = Position{
			Longitude: coordinates.Lerp(a.Longitude, b.Longitude, t),
			Latitude:  coordinates.Lerp(a.Latitude, b.Latitude, t),
			Altitude:  interpolateAltitude(a, b, t),
		}
	}
	p.Progress = progress

	next := waypoints[min(idx+1, n-1)]
	p.Bearing = coordinates.Bearing(p.Geographic(), coordinates.Geographic{
		Latitude:  next.Latitude,
		Longitude: next.Longitude,
	})
	return p
}

// interpolateAltitude returns the altitude between a and b, rounded to the
// meter, or 0 when either end has no usable altitude.
func interpolateAltitude(a, b trajectory.Waypoint, t float64) float64 {
	if !a.HasAltitude || !b.HasAltitude {
		return 0
	}
	return math.Round(coordinates.Lerp(a.Altitude, b.Altitude, t))
}
