package trajectory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/iancoleman/orderedmap"
)

var (
	// ErrMalformedDataset is returned when the input document as a whole
	// cannot be used: invalid JSON, a non-FeatureCollection top level, or
	// no features array.
	ErrMalformedDataset = errors.New("malformed flight dataset")
)

// GeoJSON type names used by the codec.
const (
	TypeFeatureCollection = "FeatureCollection"
	TypeFeature           = "Feature"
	TypeLineString        = "LineString"
	TypePoint             = "Point"
)

// Property keys of the modeled flight fields, in output order.
var knownProperties = []string{
	"flightNumber",
	"airline",
	"aircraft",
	"registration",
	"origin",
	"originName",
	"destination",
	"destinationName",
	"startTime",
	"endTime",
	"duration",
	"numPoints",
	"maxAltitude",
}

// FeatureCollection is a GeoJSON FeatureCollection document.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON Feature. Properties keep insertion order on output.
type Feature struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id,omitempty"`
	Geometry   Geometry               `json:"geometry"`
	Properties *orderedmap.OrderedMap `json:"properties"`
}

// Geometry is a GeoJSON geometry. Coordinates is []float64 for a Point and
// [][]float64 for a LineString.
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// NewFeatureCollection wraps features in a collection. A nil slice is
// rendered as an empty array, never null.
func NewFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: TypeFeatureCollection, Features: features}
}

// Properties returns the flight's GeoJSON properties: the modeled fields in
// canonical order followed by the pass-through extras. Missing timestamps
// are omitted. The returned map is freshly allocated and safe to extend.
func (f *Flight) Properties() *orderedmap.OrderedMap {
	props := orderedmap.New()
	props.SetEscapeHTML(false)
	props.Set("flightNumber", f.FlightNumber)
	props.Set("airline", f.Airline)
	props.Set("aircraft", f.Aircraft)
	props.Set("registration", f.Registration)
	props.Set("origin", f.Origin)
	props.Set("originName", f.OriginName)
	props.Set("destination", f.Destination)
	props.Set("destinationName", f.DestinationName)
	if !f.Start.IsZero() {
		props.Set("startTime", f.Start.UnixMilli())
	}
	if !f.End.IsZero() {
		props.Set("endTime", f.End.UnixMilli())
	}
	props.Set("duration", f.DurationMinutes)
	props.Set("numPoints", f.NumPoints)
	props.Set("maxAltitude", f.MaxAltitude)

	if f.Extra != nil {
		for _, k := range f.Extra.Keys() {
			v, _ := f.Extra.Get(k)
			props.Set(k, v)
		}
	}
	return props
}

// Feature renders the flight as a LineString feature, the shape it was
// loaded from.
func (f *Flight) Feature() Feature {
	coords := make([][]float64, len(f.Waypoints))
	for i, wp := range f.Waypoints {
		if wp.HasAltitude {
			coords[i] = []float64{wp.Longitude, wp.Latitude, wp.Altitude}
		} else {
			coords[i] = []float64{wp.Longitude, wp.Latitude}
		}
	}
	return Feature{
		Type: TypeFeature,
		ID:   f.ID,
		Geometry: Geometry{
			Type:        TypeLineString,
			Coordinates: coords,
		},
		Properties: f.Properties(),
	}
}

// Encode writes flights as a GeoJSON FeatureCollection of LineStrings.
func Encode(w io.Writer, flights []*Flight) error {
	features := make([]Feature, len(flights))
	for i, f := range flights {
		features[i] = f.Feature()
	}
	if err := json.NewEncoder(w).Encode(NewFeatureCollection(features)); err != nil {
		return fmt.Errorf("failed to encode flights: %w", err)
	}
	return nil
}

// Wire shapes for decoding. Every level below the document is decoded
// separately so one bad record cannot fail the whole load.
type collectionWire struct {
	Type     string             `json:"type"`
	Features *[]json.RawMessage `json:"features"`
}

type featureWire struct {
	ID         json.RawMessage `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

type geometryWire struct {
	Type        string            `json:"type"`
	Coordinates []json.RawMessage `json:"coordinates"`
}

// Decode reads a GeoJSON FeatureCollection of flights.
//
// Only document-level problems are errors. Features that are not JSON
// objects are skipped. Missing or invalid timestamps leave the flight
// unscheduled, coordinates without a numeric longitude and latitude are
// dropped, and a missing or non-numeric altitude clears HasAltitude.
func Decode(r io.Reader) ([]*Flight, error) {
	var doc collectionWire
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
	}
	if doc.Type != "" && doc.Type != TypeFeatureCollection {
		return nil, fmt.Errorf("%w: top-level type %q, want %s", ErrMalformedDataset, doc.Type, TypeFeatureCollection)
	}
	if doc.Features == nil {
		return nil, fmt.Errorf("%w: missing features array", ErrMalformedDataset)
	}

	flights := make([]*Flight, 0, len(*doc.Features))
	for _, raw := range *doc.Features {
		var fw featureWire
		if err := json.Unmarshal(raw, &fw); err != nil {
			continue
		}
		flights = append(flights, decodeFeature(fw))
	}
	return flights, nil
}

func decodeFeature(fw featureWire) *Flight {
	f := &Flight{
		ID:        decodeID(fw.ID),
		Waypoints: decodeWaypoints(fw.Geometry),
	}

	props := orderedmap.New()
	props.SetEscapeHTML(false)
	if len(fw.Properties) > 0 && string(fw.Properties) != "null" {
		if err := json.Unmarshal(fw.Properties, props); err != nil {
			props = orderedmap.New()
		}
	}

	f.FlightNumber = stringProperty(props, "flightNumber")
	f.Airline = stringProperty(props, "airline")
	f.Aircraft = stringProperty(props, "aircraft")
	f.Registration = stringProperty(props, "registration")
	f.Origin = stringProperty(props, "origin")
	f.OriginName = stringProperty(props, "originName")
	f.Destination = stringProperty(props, "destination")
	f.DestinationName = stringProperty(props, "destinationName")
	f.Start = timeProperty(props, "startTime")
	f.End = timeProperty(props, "endTime")
	f.DurationMinutes, _ = numberProperty(props, "duration")
	if n, ok := numberProperty(props, "numPoints"); ok {
		f.NumPoints = int(n)
	}
	f.MaxAltitude, _ = numberProperty(props, "maxAltitude")

	for _, k := range knownProperties {
		props.Delete(k)
	}
	if len(props.Keys()) > 0 {
		f.Extra = props
	}
	return f
}

func decodeID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func decodeWaypoints(raw json.RawMessage) []Waypoint {
	if len(raw) == 0 {
		return nil
	}
	var g geometryWire
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil
	}
	if g.Type != TypeLineString {
		return nil
	}

	waypoints := make([]Waypoint, 0, len(g.Coordinates))
	for _, c := range g.Coordinates {
		var parts []any
		if err := json.Unmarshal(c, &parts); err != nil || len(parts) < 2 {
			continue
		}
		lon, okLon := numberValue(parts[0])
		lat, okLat := numberValue(parts[1])
		if !okLon || !okLat {
			continue
		}
		wp := Waypoint{Longitude: lon, Latitude: lat}
		if len(parts) > 2 {
			wp.Altitude, wp.HasAltitude = numberValue(parts[2])
			if !wp.HasAltitude {
				wp.Altitude = 0
			}
		}
		waypoints = append(waypoints, wp)
	}
	return waypoints
}

func stringProperty(props *orderedmap.OrderedMap, key string) string {
	v, ok := props.Get(key)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func numberProperty(props *orderedmap.OrderedMap, key string) (float64, bool) {
	v, ok := props.Get(key)
	if !ok {
		return 0, false
	}
	return numberValue(v)
}

// timeProperty reads a Unix millisecond timestamp. Absent, null or
// non-numeric values yield the zero time.
func timeProperty(props *orderedmap.OrderedMap, key string) time.Time {
	ms, ok := numberProperty(props, key)
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(int64(math.Round(ms))).UTC()
}

// numberValue accepts JSON numbers and numeric strings. NaN and infinities
// are rejected.
func numberValue(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
