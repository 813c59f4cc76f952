// Package playback computes where every flight in a trajectory collection
// is at a given instant: the global time range of the collection, and one
// interpolated position (with progress and heading) per active flight.
//
// An Engine holds no state of its own. Each call takes one snapshot from
// its Source and computes from that, so any number of queries may run
// concurrently with each other and with store reloads.
package playback

import (
	"errors"
	"math"
	"time"

	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

// StepDuration is the granularity of the discretized time range.
const StepDuration = 10 * time.Minute

var (
	// ErrEmptyDataset is returned when no flight has both a start and an
	// end time, so no time range exists.
	ErrEmptyDataset = errors.New("no flight has both start and end time")
)

// Source supplies the current flight collection. *trajectory.Store
// implements it.
type Source interface {
	Snapshot() *trajectory.Snapshot
}

// TimeRange spans every scheduled flight in a collection.
type TimeRange struct {
	// Min is the earliest start time
	Min time.Time

	// Max is the latest end time
	Max time.Time

	// TenMinSteps is floor((Max - Min) / StepDuration)
	TenMinSteps int
}

// maxStepOffset is the largest |step| whose offset fits in a time.Duration.
const maxStepOffset = math.MaxInt64 / int64(StepDuration)

// StepTime returns the instant of the given step: Min + step × StepDuration.
// Steps outside [0, TenMinSteps] are allowed and simply fall outside the range.
// ok is false when the offset cannot be represented.
func (tr TimeRange) StepTime(step int) (t time.Time, ok bool) {
	if int64(step) > maxStepOffset || int64(step) < -maxStepOffset {
		return time.Time{}, false
	}
	return tr.Min.Add(time.Duration(step) * StepDuration), true
}

// Query selects the instant for ComputePositions. Step takes precedence
// over Time; with neither set the instant is the start of the time range.
type Query struct {
	Step *int
	Time *time.Time
}

// AtStep returns a Query for a step index.
func AtStep(step int) Query {
	return Query{Step: &step}
}

// AtTime returns a Query for an absolute instant.
func AtTime(t time.Time) Query {
	return Query{Time: &t}
}

// Engine answers time range and position queries against a Source.
type Engine struct {
	source Source
}

// NewEngine creates an engine reading from source.
func NewEngine(source Source) *Engine {
	return &Engine{source: source}
}

// ComputeTimeRange returns the time range of the current collection, or
// ErrEmptyDataset when no flight is scheduled.
func (e *Engine) ComputeTimeRange() (TimeRange, error) {
	return timeRange(e.source.Snapshot().Flights)
}

// Frame is the answer to one position query: the instant the query
// resolved to and the flights active then.
type Frame struct {
	Instant   time.Time
	Positions []Position
}

// ComputePositions returns the position of every flight active at the
// instant selected by q, in collection order. An empty result is not an
// error; in particular a collection without scheduled flights yields no
// positions whatever the query.
func (e *Engine) ComputePositions(q Query) []Position {
	frame, _ := e.ComputeFrame(q)
	return frame.Positions
}

// ComputeFrame is ComputePositions that also reports the resolved
// instant. Both come from the same snapshot. ok is false when q cannot be
// resolved (see Resolve); Positions is then empty.
func (e *Engine) ComputeFrame(q Query) (frame Frame, ok bool) {
	snap := e.source.Snapshot()
	instant, ok := resolve(snap.Flights, q)
	if !ok {
		return Frame{Positions: []Position{}}, false
	}
	return Frame{Instant: instant, Positions: positionsAt(snap.Flights, instant)}, true
}

// Resolve returns the instant q selects. ok is false when q needs a time
// range and the collection has none, or when its step lies beyond any
// representable instant.
func (e *Engine) Resolve(q Query) (instant time.Time, ok bool) {
	return resolve(e.source.Snapshot().Flights, q)
}

// PositionsAt returns the position of every flight active at instant.
func (e *Engine) PositionsAt(instant time.Time) []Position {
	return positionsAt(e.source.Snapshot().Flights, instant)
}

func resolve(flights []*trajectory.Flight, q Query) (time.Time, bool) {
	if q.Step == nil && q.Time != nil {
		return *q.Time, true
	}
	tr, err := timeRange(flights)
	if err != nil {
		return time.Time{}, false
	}
	if q.Step != nil {
		return tr.StepTime(*q.Step)
	}
	return tr.Min, true
}

func timeRange(flights []*trajectory.Flight) (TimeRange, error) {
	var minStart, maxEnd int64
	found := false
	for _, f := range flights {
		start, end, ok := f.Window()
		if !ok {
			continue
		}
		if !found || start < minStart {
			minStart = start
		}
		if !found || end > maxEnd {
			maxEnd = end
		}
		found = true
	}
	if !found {
		return TimeRange{}, ErrEmptyDataset
	}
	return TimeRange{
		Min:         time.UnixMilli(minStart).UTC(),
		Max:         time.UnixMilli(maxEnd).UTC(),
		TenMinSteps: int((maxEnd - minStart) / StepDuration.Milliseconds()),
	}, nil
}

func positionsAt(flights []*trajectory.Flight, instant time.Time) []Position {
	at := instant.UnixMilli()
	positions := make([]Position, 0, len(flights)/4)
	for _, f := range flights {
		if p, ok := positionOf(f, at); ok {
			positions = append(positions, p)
		}
	}
	return positions
}
