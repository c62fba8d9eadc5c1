package product

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepository is a concurrency-safe in-memory Repository, used for local
// development and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[string]Product
	statuses map[string]Status
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		products: make(map[string]Product),
		statuses: make(map[string]Status),
	}
}

// Put adds or replaces a product together with its current status.
func (r *MemoryRepository) Put(p Product, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
	r.statuses[p.ID] = status
}

func (r *MemoryRepository) ListProducts(_ context.Context) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %q", ErrNotFound, id)
	}
	return &p, nil
}

func (r *MemoryRepository) FindByName(_ context.Context, name string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.products {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: name %q", ErrNotFound, name)
}

func (r *MemoryRepository) CurrentStatus(_ context.Context, p Product) (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.statuses[p.ID]
	if !ok {
		return StatusDidNotRun, nil
	}
	return status, nil
}
