// Package trajectory holds the in-memory flight collection served by the
// playback engine: the flight record types, the GeoJSON codec used to load
// and list them, and the Store that swaps whole collections atomically.
package trajectory

import (
	"time"

	"github.com/iancoleman/orderedmap"
)

// Waypoint is one sample along a flight's path.
// Waypoint i of n corresponds to progress i/(n-1) along the flight.
type Waypoint struct {
	// Longitude in decimal degrees (-180 to +180)
	Longitude float64

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64

	// Altitude in meters. Only meaningful when HasAltitude is true.
	Altitude float64

	// HasAltitude is false when the source coordinate had no usable altitude.
	HasAltitude bool
}

// Flight is a single flight record. Records are immutable once loaded;
// readers share them across goroutines without copying.
type Flight struct {
	// ID is the GeoJSON feature id, empty when the source had none
	ID string

	FlightNumber    string
	Airline         string
	Aircraft        string
	Registration    string
	Origin          string
	OriginName      string
	Destination     string
	DestinationName string

	// Start and End are the scheduled departure and arrival instants.
	// The zero time.Time means the source had no usable value.
	Start time.Time
	End   time.Time

	// DurationMinutes, NumPoints and MaxAltitude are carried through from
	// the source as informational properties; nothing is derived from them.
	DurationMinutes float64
	NumPoints       int
	MaxAltitude     float64

	Waypoints []Waypoint

	// Extra holds source properties not modeled above, in source order.
	// Nil when there are none.
	Extra *orderedmap.OrderedMap
}

// Scheduled reports whether the flight has both timestamps and Start <= End.
// Unscheduled flights take no part in time range or position computations.
func (f *Flight) Scheduled() bool {
	if f.Start.IsZero() || f.End.IsZero() {
		return false
	}
	return !f.End.Before(f.Start)
}

// Window returns the flight's [start, end] interval in Unix milliseconds.
// ok is false for unscheduled flights.
func (f *Flight) Window() (startMs, endMs int64, ok bool) {
	if !f.Scheduled() {
		return 0, 0, false
	}
	return f.Start.UnixMilli(), f.End.UnixMilli(), true
}
