package trajectory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Loader produces a complete flight collection.
type Loader interface {
	Load(ctx context.Context) ([]*Flight, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) ([]*Flight, error)

// Load implements Loader.
func (fn LoaderFunc) Load(ctx context.Context) ([]*Flight, error) {
	return fn(ctx)
}

// Snapshot is one immutable, fully loaded flight collection.
type Snapshot struct {
	// Flights in source order. Neither the slice nor the records may be
	// modified once the snapshot is published.
	Flights []*Flight

	// Source describes where the collection came from (e.g. a file path)
	Source string

	// LoadedAt is when the collection was published
	LoadedAt time.Time

	// Generation increases by one with every successful load; 0 means
	// nothing has been loaded yet.
	Generation uint64
}

// Len returns the number of flights in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Flights)
}

// Scheduled returns how many flights have a usable [start, end] window.
func (s *Snapshot) Scheduled() int {
	n := 0
	for _, f := range s.Flights {
		if f.Scheduled() {
			n++
		}
	}
	return n
}

var emptySnapshot = &Snapshot{}

// Store owns the current flight collection. Reads are lock-free: callers
// take one Snapshot per query and work only on it. Loads are serialized
// and publish a new snapshot with a single pointer swap, so readers see
// either the old collection or the new one, never a mix.
type Store struct {
	loader Loader

	mu      sync.Mutex // serializes Load/Reload
	current atomic.Pointer[Snapshot]
}

// NewStore creates an empty store that loads from loader.
func NewStore(loader Loader) *Store {
	return &Store{loader: loader}
}

// NewStaticStore creates a store already holding flights, for callers
// that build the collection in memory. Reload re-publishes the same
// flights.
func NewStaticStore(flights []*Flight) *Store {
	s := NewStore(LoaderFunc(func(context.Context) ([]*Flight, error) {
		return flights, nil
	}))
	s.publish(flights)
	return s
}

// Load performs the initial load. It is identical to Reload and exists
// to make the startup path read naturally.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	return s.Reload(ctx)
}

// Reload replaces the whole collection with a fresh load from the
// loader. On failure the current snapshot stays in place.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flights, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load flights: %w", err)
	}
	return s.publish(flights), nil
}

// publish must be called with mu held, or before the store is shared.
func (s *Store) publish(flights []*Flight) *Snapshot {
	if flights == nil {
		flights = []*Flight{}
	}
	snap := &Snapshot{
		Flights:    flights,
		Source:     describe(s.loader),
		LoadedAt:   time.Now().UTC(),
		Generation: s.Snapshot().Generation + 1,
	}
	s.current.Store(snap)
	return snap
}

// Snapshot returns the current collection. Before the first successful
// load it returns an empty snapshot with Generation 0.
func (s *Store) Snapshot() *Snapshot {
	if snap := s.current.Load(); snap != nil {
		return snap
	}
	return emptySnapshot
}

// Flights returns every record of the current snapshot, unscheduled ones
// included, in source order.
func (s *Store) Flights() []*Flight {
	return s.Snapshot().Flights
}

func describe(l Loader) string {
	if st, ok := l.(fmt.Stringer); ok {
		return st.String()
	}
	return "memory"
}
