package spatial

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Domain errors
var (
	ErrInvalidTopology         = errors.New("warehouse layout is not a valid tree")
	ErrUnknownBin              = errors.New("bin not present in the active warehouse map")
	ErrCrossWarehouseReference = errors.New("bin belongs to a different warehouse")
	ErrDuplicateActiveMap      = errors.New("warehouse already has an active map")
	ErrNoActiveMap             = errors.New("warehouse has no active map")
)

// Metric selects the distance function used by a graph
type Metric string

const (
	MetricEuclidean Metric = "euclidean"
	MetricManhattan Metric = "manhattan"
)

// BinLocation is a bin resolved to its absolute position
type BinLocation struct {
	BinID    string
	ZoneID   string
	AisleID  string
	RackID   string
	Position Coordinate
	Capacity int
}

// Graph is an immutable spatial index over one warehouse map. Once built it
// is never mutated; layout changes produce a new graph.
type Graph struct {
	warehouseID  string
	stagingPoint Coordinate
	metric       Metric
	bins         map[string]BinLocation
	binIDs       []string
}

// Build validates a warehouse map and resolves every bin to an absolute
// coordinate. The hierarchy must be a strict tree: an id reused anywhere in
// the map, at any level, is ErrInvalidTopology.
func Build(m *WarehouseMap, metric Metric) (*Graph, error) {
	if m == nil || m.WarehouseID == "" {
		return nil, fmt.Errorf("%w: missing warehouse id", ErrInvalidTopology)
	}
	if metric == "" {
		metric = MetricEuclidean
	}

	seen := make(map[string]struct{})
	claim := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("%w: empty %s id", ErrInvalidTopology, kind)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s %q referenced more than once", ErrInvalidTopology, kind, id)
		}
		seen[id] = struct{}{}
		return nil
	}

	g := &Graph{
		warehouseID:  m.WarehouseID,
		stagingPoint: m.StagingPoint,
		metric:       metric,
		bins:         make(map[string]BinLocation),
	}

	for _, zone := range m.Zones {
		if err := claim("zone", zone.ID); err != nil {
			return nil, err
		}
		zonePos := zone.Offset

		for _, aisle := range zone.Aisles {
			if err := claim("aisle", aisle.ID); err != nil {
				return nil, err
			}
			aislePos := zonePos.Add(aisle.Offset)

			for _, rack := range aisle.Racks {
				if err := claim("rack", rack.ID); err != nil {
					return nil, err
				}
				rackPos := aislePos.Add(rack.Offset)

				for _, bin := range rack.Bins {
					if err := claim("bin", bin.ID); err != nil {
						return nil, err
					}
					g.bins[bin.ID] = BinLocation{
						BinID:    bin.ID,
						ZoneID:   zone.ID,
						AisleID:  aisle.ID,
						RackID:   rack.ID,
						Position: rackPos.Add(bin.Offset),
						Capacity: bin.Capacity,
					}
					g.binIDs = append(g.binIDs, bin.ID)
				}
			}
		}
	}

	sort.Strings(g.binIDs)
	return g, nil
}

// WarehouseID returns the warehouse this graph indexes
func (g *Graph) WarehouseID() string {
	return g.warehouseID
}

// StagingPoint returns the pick staging location for the warehouse
func (g *Graph) StagingPoint() Coordinate {
	return g.stagingPoint
}

// Metric returns the distance metric the graph was built with
func (g *Graph) Metric() Metric {
	return g.metric
}

// BinIDs returns all bin ids in ascending order
func (g *Graph) BinIDs() []string {
	out := make([]string, len(g.binIDs))
	copy(out, g.binIDs)
	return out
}

// Locate resolves a bin to its absolute location
func (g *Graph) Locate(binID string) (BinLocation, error) {
	loc, ok := g.bins[binID]
	if !ok {
		return BinLocation{}, fmt.Errorf("%w: %s", ErrUnknownBin, binID)
	}
	return loc, nil
}

// Contains reports whether the bin exists in this graph
func (g *Graph) Contains(binID string) bool {
	_, ok := g.bins[binID]
	return ok
}

// Distance returns the travel distance between two bins
func (g *Graph) Distance(binA, binB string) (float64, error) {
	a, err := g.Locate(binA)
	if err != nil {
		return 0, err
	}
	b, err := g.Locate(binB)
	if err != nil {
		return 0, err
	}
	return g.measure(a.Position, b.Position), nil
}

// DistanceFrom returns the travel distance from an arbitrary point to a bin
func (g *Graph) DistanceFrom(point Coordinate, binID string) (float64, error) {
	loc, err := g.Locate(binID)
	if err != nil {
		return 0, err
	}
	return g.measure(point, loc.Position), nil
}

// Measure returns the travel distance between two arbitrary points using
// the graph's metric
func (g *Graph) Measure(a, b Coordinate) float64 {
	return g.measure(a, b)
}

func (g *Graph) measure(a, b Coordinate) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	if g.metric == MetricManhattan {
		return math.Abs(dx) + math.Abs(dy)
	}
	return math.Sqrt(dx*dx + dy*dy)
}

// Registry holds the active graph for each warehouse. Installing a map
// atomically replaces the previous graph; readers always see a complete
// graph, never a partially updated one.
type Registry struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
	metric Metric
}

// NewRegistry creates an empty registry using the given distance metric
// for all graphs it builds
func NewRegistry(metric Metric) *Registry {
	if metric == "" {
		metric = MetricEuclidean
	}
	return &Registry{
		graphs: make(map[string]*Graph),
		metric: metric,
	}
}

// Install validates the map, builds a fresh graph and swaps it in as the
// active graph for the warehouse. The previous graph, if any, is replaced
// whole.
func (r *Registry) Install(m *WarehouseMap) (*Graph, error) {
	g, err := Build(m, r.metric)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.graphs[g.warehouseID] = g
	r.mu.Unlock()

	return g, nil
}

// InstallNew installs a map only when the warehouse has no active map yet.
// A second map for the same warehouse is ErrDuplicateActiveMap; replacement
// must go through Install.
func (r *Registry) InstallNew(m *WarehouseMap) (*Graph, error) {
	g, err := Build(m, r.metric)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.graphs[g.warehouseID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateActiveMap, g.warehouseID)
	}
	r.graphs[g.warehouseID] = g
	return g, nil
}

// Graph returns the active graph for a warehouse
func (r *Registry) Graph(warehouseID string) (*Graph, error) {
	r.mu.RLock()
	g, ok := r.graphs[warehouseID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveMap, warehouseID)
	}
	return g, nil
}

// WarehouseIDs returns the warehouses with an active map, in ascending order
func (r *Registry) WarehouseIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.graphs))
	for id := range r.graphs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Locate resolves a bin within the named warehouse. A bin that exists in a
// different warehouse's map is a cross-warehouse reference, not an unknown
// bin.
func (r *Registry) Locate(warehouseID, binID string) (BinLocation, error) {
	g, err := r.Graph(warehouseID)
	if err != nil {
		return BinLocation{}, err
	}

	loc, err := g.Locate(binID)
	if err == nil {
		return loc, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for otherID, other := range r.graphs {
		if otherID == warehouseID {
			continue
		}
		if other.Contains(binID) {
			return BinLocation{}, fmt.Errorf("%w: bin %s is mapped in warehouse %s", ErrCrossWarehouseReference, binID, otherID)
		}
	}

	return BinLocation{}, err
}
