package erp

import (
	"context"
	"sync"
)

// Fake is an in-memory Client for tests and local development. Populate
// Warehouses and Products, then flip Available to simulate outages.
type Fake struct {
	mu sync.Mutex

	Available  bool
	Warehouses map[string]WarehouseInfo
	Products   map[string][]Product // warehouseID → products

	// FailExternalIDs makes BulkUpdateStock report a per-item failure for
	// the listed external IDs.
	FailExternalIDs map[string]bool

	ConnectCalls int
	PushedDeltas map[string]int // externalID → accumulated delta
}

func NewFake() *Fake {
	return &Fake{
		Available:       true,
		Warehouses:      make(map[string]WarehouseInfo),
		Products:        make(map[string][]Product),
		FailExternalIDs: make(map[string]bool),
		PushedDeltas:    make(map[string]int),
	}
}

func (f *Fake) CheckConnection(context.Context) (ConnectionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Available {
		return ConnectionStatus{Connected: false, Message: "source offline"}, nil
	}
	return ConnectionStatus{Connected: true, Message: "ok"}, nil
}

func (f *Fake) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Available {
		return ErrUnavailable
	}
	f.ConnectCalls++
	return nil
}

func (f *Fake) Disconnect(context.Context) error { return nil }

func (f *Fake) GetWarehouseByID(_ context.Context, id string) (*WarehouseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Available {
		return nil, ErrUnavailable
	}
	info, ok := f.Warehouses[id]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (f *Fake) GetProductsByWarehouse(_ context.Context, id string) ([]Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Available {
		return nil, ErrUnavailable
	}
	out := make([]Product, len(f.Products[id]))
	copy(out, f.Products[id])
	return out, nil
}

func (f *Fake) BulkUpdateStock(_ context.Context, updates []StockUpdate, _ string) ([]UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Available {
		return nil, ErrUnavailable
	}

	results := make([]UpdateResult, 0, len(updates))
	for _, u := range updates {
		if f.FailExternalIDs[u.ExternalID] {
			results = append(results, UpdateResult{
				ExternalID: u.ExternalID,
				Success:    false,
				Error:      "item rejected",
			})
			continue
		}
		f.PushedDeltas[u.ExternalID] += u.Delta
		results = append(results, UpdateResult{ExternalID: u.ExternalID, Success: true})
	}
	return results, nil
}

// SetAvailable toggles the simulated connectivity of the fake source.
func (f *Fake) SetAvailable(up bool) {
	f.mu.Lock()
	f.Available = up
	f.mu.Unlock()
}

var _ Client = (*Fake)(nil)
