package spatial

// Coordinate is a point in the warehouse floor plane, in meters
type Coordinate struct {
	X float64 `json:"x" bson:"x"`
	Y float64 `json:"y" bson:"y"`
}

// Add returns the coordinate translated by the given offset
func (c Coordinate) Add(offset Coordinate) Coordinate {
	return Coordinate{X: c.X + offset.X, Y: c.Y + offset.Y}
}

// WarehouseMap is the layout document for one warehouse. Each level carries
// an offset relative to its parent; bin positions are resolved by composing
// offsets down the tree.
type WarehouseMap struct {
	WarehouseID  string     `json:"warehouseId" bson:"warehouseId"`
	Name         string     `json:"name" bson:"name"`
	StagingPoint Coordinate `json:"stagingPoint" bson:"stagingPoint"`
	Zones        []Zone     `json:"zones" bson:"zones"`
}

// Zone is a named region of the warehouse floor
type Zone struct {
	ID     string     `json:"id" bson:"id"`
	Name   string     `json:"name,omitempty" bson:"name,omitempty"`
	Offset Coordinate `json:"offset" bson:"offset"`
	Aisles []Aisle    `json:"aisles" bson:"aisles"`
}

// Aisle is a traversable lane within a zone
type Aisle struct {
	ID     string     `json:"id" bson:"id"`
	Offset Coordinate `json:"offset" bson:"offset"`
	Racks  []Rack     `json:"racks" bson:"racks"`
}

// Rack is a storage unit along an aisle
type Rack struct {
	ID     string     `json:"id" bson:"id"`
	Offset Coordinate `json:"offset" bson:"offset"`
	Bins   []Bin      `json:"bins" bson:"bins"`
}

// Bin is the smallest addressable storage location
type Bin struct {
	ID       string     `json:"id" bson:"id"`
	Offset   Coordinate `json:"offset" bson:"offset"`
	Capacity int        `json:"capacity" bson:"capacity"`
}
