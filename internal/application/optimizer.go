package application

import (
	"errors"
	"sort"

	"github.com/wms-platform/warehouse-task-service/internal/spatial"
)

// ErrEmptyRouteRequest is returned when a route is requested with no stops
var ErrEmptyRouteRequest = errors.New("route request contains no stops")

// RouteStop is one requested visit, optionally tied to a work task
type RouteStop struct {
	BinID  string
	TaskID string
}

// RouteLeg is one resolved stop on the optimized route
type RouteLeg struct {
	Sequence           int     `json:"sequence"`
	BinID              string  `json:"binId"`
	TaskID             string  `json:"taskId,omitempty"`
	LegDistance        float64 `json:"legDistance"`
	CumulativeDistance float64 `json:"cumulativeDistance"`
}

// Route is the optimized visiting order with per-leg distances
type Route struct {
	WarehouseID   string             `json:"warehouseId"`
	Start         spatial.Coordinate `json:"start"`
	Legs          []RouteLeg         `json:"legs"`
	TotalDistance float64            `json:"totalDistance"`
}

// RouteOptimizer orders stops with deterministic nearest-neighbor
// construction and 2-opt refinement for small routes. It reads the graph
// and nothing else; two calls with the same input produce the same route.
type RouteOptimizer struct {
	twoOptMaxStops int
}

// NewRouteOptimizer creates an optimizer. Routes with more than
// twoOptMaxStops stops skip the 2-opt pass and keep the greedy order.
func NewRouteOptimizer(twoOptMaxStops int) *RouteOptimizer {
	return &RouteOptimizer{twoOptMaxStops: twoOptMaxStops}
}

type resolvedStop struct {
	stop     RouteStop
	position spatial.Coordinate
}

// Optimize computes the visiting order for the stops starting from start.
// A nil start begins at the warehouse staging point.
func (o *RouteOptimizer) Optimize(graph *spatial.Graph, start *spatial.Coordinate, stops []RouteStop) (*Route, error) {
	if len(stops) == 0 {
		return nil, ErrEmptyRouteRequest
	}

	origin := graph.StagingPoint()
	if start != nil {
		origin = *start
	}

	resolved := make([]resolvedStop, 0, len(stops))
	for _, stop := range stops {
		loc, err := graph.Locate(stop.BinID)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, resolvedStop{stop: stop, position: loc.Position})
	}

	// Sort up front so nearest-neighbor tie-breaks resolve to the
	// ascending bin id regardless of request order
	sort.SliceStable(resolved, func(i, j int) bool {
		if resolved[i].stop.BinID != resolved[j].stop.BinID {
			return resolved[i].stop.BinID < resolved[j].stop.BinID
		}
		return resolved[i].stop.TaskID < resolved[j].stop.TaskID
	})

	ordered := nearestNeighbor(graph, origin, resolved)

	if len(ordered) <= o.twoOptMaxStops {
		ordered = twoOpt(graph, origin, ordered)
	}

	route := &Route{
		WarehouseID: graph.WarehouseID(),
		Start:       origin,
		Legs:        make([]RouteLeg, 0, len(ordered)),
	}

	current := origin
	cumulative := 0.0
	for i, rs := range ordered {
		leg := measure(graph, current, rs.position)
		cumulative += leg
		route.Legs = append(route.Legs, RouteLeg{
			Sequence:           i + 1,
			BinID:              rs.stop.BinID,
			TaskID:             rs.stop.TaskID,
			LegDistance:        leg,
			CumulativeDistance: cumulative,
		})
		current = rs.position
	}
	route.TotalDistance = cumulative

	return route, nil
}

// nearestNeighbor greedily visits the closest unvisited stop. Input is
// pre-sorted by bin id, so strict less-than comparison leaves the earlier
// bin id in place on exact distance ties.
func nearestNeighbor(graph *spatial.Graph, origin spatial.Coordinate, stops []resolvedStop) []resolvedStop {
	remaining := make([]resolvedStop, len(stops))
	copy(remaining, stops)

	ordered := make([]resolvedStop, 0, len(stops))
	current := origin

	for len(remaining) > 0 {
		best := 0
		bestDist := measure(graph, current, remaining[0].position)
		for i := 1; i < len(remaining); i++ {
			d := measure(graph, current, remaining[i].position)
			if d < bestDist {
				best = i
				bestDist = d
			}
		}

		next := remaining[best]
		ordered = append(ordered, next)
		remaining = append(remaining[:best], remaining[best+1:]...)
		current = next.position
	}

	return ordered
}

// twoOpt refines an open path by reversing segments while that shortens
// the total distance. First-improvement scan order keeps it deterministic.
func twoOpt(graph *spatial.Graph, origin spatial.Coordinate, stops []resolvedStop) []resolvedStop {
	const epsilon = 1e-9

	path := make([]resolvedStop, len(stops))
	copy(path, stops)

	improved := true
	for improved {
		improved = false
		for i := 0; i < len(path)-1; i++ {
			for j := i + 1; j < len(path); j++ {
				before := segmentCost(graph, origin, path, i, j)
				reverse(path, i, j)
				after := segmentCost(graph, origin, path, i, j)
				if after < before-epsilon {
					improved = true
				} else {
					reverse(path, i, j)
				}
			}
		}
	}

	return path
}

// segmentCost measures the edges a reversal of path[i..j] affects: the edge
// into i and, when j is not the last stop, the edge out of j
func segmentCost(graph *spatial.Graph, origin spatial.Coordinate, path []resolvedStop, i, j int) float64 {
	prev := origin
	if i > 0 {
		prev = path[i-1].position
	}
	cost := measure(graph, prev, path[i].position)
	if j < len(path)-1 {
		cost += measure(graph, path[j].position, path[j+1].position)
	}
	return cost
}

func reverse(path []resolvedStop, i, j int) {
	for i < j {
		path[i], path[j] = path[j], path[i]
		i++
		j--
	}
}

func measure(graph *spatial.Graph, from, to spatial.Coordinate) float64 {
	return graph.Measure(from, to)
}
