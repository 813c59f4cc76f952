// Package dataset generates synthetic one-day flight collections between
// major European airports, in the same shape the playback server loads.
package dataset

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/unklstewy/flight-playback/pkg/coordinates"
	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

// Airport is a catalog entry.
type Airport struct {
	Code      string
	Name      string
	Longitude float64
	Latitude  float64
}

// Airports is the fixed catalog flights are drawn from.
var Airports = []Airport{
	{"LHR", "London Heathrow", -0.4543, 51.47},
	{"CDG", "Paris Charles de Gaulle", 2.5479, 49.0097},
	{"FRA", "Frankfurt am Main", 8.5622, 50.0379},
	{"AMS", "Amsterdam Schiphol", 4.7683, 52.3105},
	{"MAD", "Madrid Barajas", -3.568, 40.4839},
	{"FCO", "Rome Fiumicino", 12.2389, 41.8003},
	{"MUC", "Munich", 11.7861, 48.3538},
	{"ZRH", "Zurich", 8.5492, 47.4647},
	{"VIE", "Vienna", 16.5697, 48.1103},
	{"DUB", "Dublin", -6.2701, 53.4264},
	{"BRU", "Brussels", 4.4844, 50.9014},
	{"LIS", "Lisbon", -9.1342, 38.7742},
	{"ATH", "Athens", 23.9445, 37.9364},
	{"IST", "Istanbul", 28.8146, 41.2619},
	{"VCE", "Venice", 12.3186, 45.5050},
	{"BCN", "Barcelona", 2.0785, 41.2971},
	{"CDT", "Copenhagen", 12.65, 55.618},
	{"OSL", "Oslo", 11.1004, 60.1939},
	{"ARN", "Stockholm Arlanda", 17.9186, 59.6519},
	{"WAW", "Warsaw", 20.9671, 52.1657},
}

// Airlines are carrier codes. AF appears twice and is drawn twice as often.
var Airlines = []string{"BA", "LH", "AF", "KL", "IB", "AZ", "OS", "SK", "SN", "RJ", "TP", "AA", "UA", "DL", "AF"}

// Aircraft are the type labels assigned to flights.
var Aircraft = []string{"Boeing 777", "Airbus A380", "Airbus A320", "Boeing 737", "Airbus A350", "Embraer E190"}

const (
	// cruiseBase and cruiseSwing shape the altitude profile in meters:
	// cruiseBase at both ends, rising by cruiseSwing at mid-flight.
	cruiseBase  = 10000
	cruiseSwing = 3000

	firstDepartureHour = 5
	lastDepartureHour  = 23
)

// Options control generation.
type Options struct {
	// Date is the day flights depart on; only its UTC date is used
	Date time.Time

	// Flights is how many flights are drawn. Those that would land after
	// midnight are dropped, so fewer are returned.
	Flights int

	// Points is the number of waypoints per flight (at least 2)
	Points int

	// Seed makes the output reproducible
	Seed uint64
}

// DefaultOptions returns the options of the reference dataset.
func DefaultOptions() Options {
	return Options{
		Date:    time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		Flights: 350,
		Points:  15,
		Seed:    1,
	}
}

// Generate draws a flight collection. The same options always give the
// same flights, IDs included.
func Generate(opts Options) ([]*trajectory.Flight, error) {
	if opts.Flights < 0 {
		return nil, fmt.Errorf("flight count must not be negative, got %d", opts.Flights)
	}
	if opts.Points < 2 {
		return nil, fmt.Errorf("a flight needs at least 2 points, got %d", opts.Points)
	}

	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:], opts.Seed)
	src := rand.NewChaCha8(seed)
	g := &generator{rng: rand.New(src), src: src}

	y, m, d := opts.Date.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	flights := make([]*trajectory.Flight, 0, opts.Flights)
	for i := 0; i < opts.Flights; i++ {
		f, err := g.flight(day, opts.Points)
		if err != nil {
			return nil, err
		}
		if f != nil {
			flights = append(flights, f)
		}
	}
	return flights, nil
}

type generator struct {
	rng *rand.Rand
	src *rand.ChaCha8 // shared with rng; feeds UUIDs
}

// between returns a uniform integer in [lo, hi].
func (g *generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

// flight draws one flight departing on day, or nil if it would land on
// the next day.
func (g *generator) flight(day time.Time, points int) (*trajectory.Flight, error) {
	oi := g.rng.IntN(len(Airports))
	di := g.rng.IntN(len(Airports) - 1)
	if di >= oi {
		di++
	}
	origin, dest := Airports[oi], Airports[di]

	start := day.Add(time.Duration(g.between(firstDepartureHour, lastDepartureHour))*time.Hour +
		time.Duration(g.between(0, 59))*time.Minute)

	// Roughly 1 to 5 hours, from the distance in degrees
	dist := math.Hypot(dest.Longitude-origin.Longitude, dest.Latitude-origin.Latitude)
	minutes := int((1 + dist/5) * 60)
	end := start.Add(time.Duration(minutes) * time.Minute)
	if end.Day() != start.Day() {
		return nil, nil
	}

	airline := Airlines[g.rng.IntN(len(Airlines))]
	number := airline + strconv.Itoa(g.between(100, 9999))
	aircraft := Aircraft[g.rng.IntN(len(Aircraft))]
	registration := "N" + strconv.Itoa(g.between(10000, 99999))

	id, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		return nil, fmt.Errorf("failed to generate flight id: %w", err)
	}

	path := flightPath(origin, dest, points)
	maxAlt := 0.0
	for _, wp := range path {
		maxAlt = math.Max(maxAlt, wp.Altitude)
	}

	return &trajectory.Flight{
		ID:              id.String(),
		FlightNumber:    number,
		Airline:         airline,
		Aircraft:        aircraft,
		Registration:    registration,
		Origin:          origin.Code,
		OriginName:      origin.Name,
		Destination:     dest.Code,
		DestinationName: dest.Name,
		Start:           start,
		End:             end,
		DurationMinutes: float64(minutes),
		NumPoints:       len(path),
		MaxAltitude:     maxAlt,
		Waypoints:       path,
	}, nil
}

// flightPath returns points waypoints on the straight line (in degrees)
// from origin to dest, climbing to cruise and descending again.
func flightPath(origin, dest Airport, points int) []trajectory.Waypoint {
	path := make([]trajectory.Waypoint, points)
	for i := range path {
		t := float64(i) / float64(points-1)
		path[i] = trajectory.Waypoint{
			Longitude:   coordinates.Lerp(origin.Longitude, dest.Longitude, t),
			Latitude:    coordinates.Lerp(origin.Latitude, dest.Latitude, t),
			Altitude:    math.Trunc(cruiseBase + cruiseSwing*math.Sin(t*3.14159)),
			HasAltitude: true,
		}
	}
	return path
}
