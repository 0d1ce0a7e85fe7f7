package application

import (
	"sync"
)

// StockEntry is one bin/product quantity in a stock snapshot
type StockEntry struct {
	BinID     string `json:"binId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// StockView holds the latest stock snapshot per warehouse. Snapshots are
// installed whole by an upstream inventory collaborator; the planner only
// reads them.
type StockView struct {
	mu sync.RWMutex
	// warehouseID -> binID -> productID -> quantity
	stock map[string]map[string]map[string]int
}

// NewStockView creates an empty StockView
func NewStockView() *StockView {
	return &StockView{
		stock: make(map[string]map[string]map[string]int),
	}
}

// Install replaces the warehouse's stock snapshot
func (v *StockView) Install(warehouseID string, entries []StockEntry) {
	snapshot := make(map[string]map[string]int)
	for _, e := range entries {
		bin, ok := snapshot[e.BinID]
		if !ok {
			bin = make(map[string]int)
			snapshot[e.BinID] = bin
		}
		bin[e.ProductID] += e.Quantity
	}

	v.mu.Lock()
	v.stock[warehouseID] = snapshot
	v.mu.Unlock()
}

// Quantity returns the units of a product held in a bin
func (v *StockView) Quantity(warehouseID, binID, productID string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stock[warehouseID][binID][productID]
}

// BinsHolding returns the quantity by bin for a product
func (v *StockView) BinsHolding(warehouseID, productID string) map[string]int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[string]int)
	for binID, products := range v.stock[warehouseID] {
		if qty := products[productID]; qty > 0 {
			out[binID] = qty
		}
	}
	return out
}

// UsedCapacity returns the total units stored in a bin across products
func (v *StockView) UsedCapacity(warehouseID, binID string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	total := 0
	for _, qty := range v.stock[warehouseID][binID] {
		total += qty
	}
	return total
}
