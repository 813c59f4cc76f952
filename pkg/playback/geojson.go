package playback

import (
	"github.com/iancoleman/orderedmap"

	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

// Feature renders the position as a GeoJSON Point feature carrying the
// flight's properties plus progress and bearing. Altitude is the third
// coordinate.
func (p Position) Feature() trajectory.Feature {
	var id string
	props := orderedmap.New()
	if p.Flight != nil {
		id = p.Flight.ID
		props = p.Flight.Properties()
	}
	props.Set("progress", p.Progress)
	props.Set("bearing", p.Bearing)

	return trajectory.Feature{
		Type: trajectory.TypeFeature,
		ID:   id,
		Geometry: trajectory.Geometry{
			Type:        trajectory.TypePoint,
			Coordinates: []float64{p.Longitude, p.Latitude, p.Altitude},
		},
		Properties: props,
	}
}

// FeatureCollection renders positions as a GeoJSON FeatureCollection of
// Points, in the order given.
func FeatureCollection(positions []Position) trajectory.FeatureCollection {
	features := make([]trajectory.Feature, len(positions))
	for i, p := range positions {
		features[i] = p.Feature()
	}
	return trajectory.NewFeatureCollection(features)
}
