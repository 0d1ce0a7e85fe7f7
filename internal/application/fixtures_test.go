package application

import (
	"io"

	"github.com/wms-platform/warehouse-task-service/internal/spatial"
	"github.com/wms-platform/warehouse-task-service/pkg/logging"
)

const testWarehouseID = "wh-east"

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{
		Level:       logging.LevelError,
		ServiceName: "warehouse-task-service-test",
		Output:      io.Discard,
	})
}

// testWarehouseMap lays out four bins with known absolute positions:
//
//	bin-a1 (0,0)   bin-a2 (3,0)   bin-a3 (3,4)   bin-b1 (50,0)
//
// Staging point is the origin.
func testWarehouseMap() *spatial.WarehouseMap {
	return &spatial.WarehouseMap{
		WarehouseID:  testWarehouseID,
		Name:         "East DC",
		StagingPoint: spatial.Coordinate{X: 0, Y: 0},
		Zones: []spatial.Zone{
			{
				ID:     "zone-a",
				Offset: spatial.Coordinate{X: 0, Y: 0},
				Aisles: []spatial.Aisle{
					{
						ID:     "aisle-a1",
						Offset: spatial.Coordinate{X: 0, Y: 0},
						Racks: []spatial.Rack{
							{
								ID:     "rack-a1",
								Offset: spatial.Coordinate{X: 0, Y: 0},
								Bins: []spatial.Bin{
									{ID: "bin-a1", Offset: spatial.Coordinate{X: 0, Y: 0}, Capacity: 100},
									{ID: "bin-a2", Offset: spatial.Coordinate{X: 3, Y: 0}, Capacity: 100},
									{ID: "bin-a3", Offset: spatial.Coordinate{X: 3, Y: 4}, Capacity: 10},
								},
							},
						},
					},
				},
			},
			{
				ID:     "zone-b",
				Offset: spatial.Coordinate{X: 50, Y: 0},
				Aisles: []spatial.Aisle{
					{
						ID:     "aisle-b1",
						Offset: spatial.Coordinate{X: 0, Y: 0},
						Racks: []spatial.Rack{
							{
								ID:     "rack-b1",
								Offset: spatial.Coordinate{X: 0, Y: 0},
								Bins: []spatial.Bin{
									{ID: "bin-b1", Offset: spatial.Coordinate{X: 0, Y: 0}, Capacity: 200},
								},
							},
						},
					},
				},
			},
		},
	}
}

func testRegistry() *spatial.Registry {
	registry := spatial.NewRegistry(spatial.MetricEuclidean)
	if _, err := registry.Install(testWarehouseMap()); err != nil {
		panic(err)
	}
	return registry
}

func testGraph() *spatial.Graph {
	graph, err := spatial.Build(testWarehouseMap(), spatial.MetricEuclidean)
	if err != nil {
		panic(err)
	}
	return graph
}
