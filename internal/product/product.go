// Package product provides the read-only product model consumed by the report
// gateway and the status endpoints. Products, their test plans and build
// history are owned by the test-execution platform; this package only reads
// them.
package product

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNotFound is returned when no product matches the requested id or name.
var ErrNotFound = errors.New("product: not found")

// Status is the aggregated state of a product's most recent test plans.
type Status string

const (
	StatusFail       Status = "FAIL"
	StatusError      Status = "ERROR"
	StatusSuccess    Status = "SUCCESS"
	StatusRunning    Status = "RUNNING"
	StatusPending    Status = "PENDING"
	StatusIncomplete Status = "INCOMPLETE"
	StatusDidNotRun  Status = "DID_NOT_RUN"
)

// Product is a tested product line. The timestamps are nil until the first
// build of the corresponding outcome.
type Product struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	LastSuccessTimestamp *time.Time `json:"lastSuccessTimestamp,omitempty"`
	LastFailureTimestamp *time.Time `json:"lastFailureTimestamp,omitempty"`
}

// ProductStatus is the dashboard view of a product and its current status.
type ProductStatus struct {
	ProductID            string     `json:"productId"`
	ProductName          string     `json:"productName"`
	ProductStatus        Status     `json:"productStatus"`
	LastSuccessTimestamp *time.Time `json:"lastSuccessTimestamp"`
	LastFailureTimestamp *time.Time `json:"lastFailureTimestamp"`
}

// Finder looks a product up by name.
type Finder interface {
	FindByName(ctx context.Context, name string) (*Product, error)
}

// Repository is the data-access interface for products.
type Repository interface {
	Finder
	ListProducts(ctx context.Context) ([]Product, error)
	FindByID(ctx context.Context, id string) (*Product, error)
	CurrentStatus(ctx context.Context, p Product) (Status, error)
}

// StatusOf builds the dashboard view of p.
func StatusOf(ctx context.Context, repo Repository, p Product) (ProductStatus, error) {
	status, err := repo.CurrentStatus(ctx, p)
	if err != nil {
		return ProductStatus{}, fmt.Errorf("product: status of %q: %w", p.Name, err)
	}
	return ProductStatus{
		ProductID:            p.ID,
		ProductName:          p.Name,
		ProductStatus:        status,
		LastSuccessTimestamp: p.LastSuccessTimestamp,
		LastFailureTimestamp: p.LastFailureTimestamp,
	}, nil
}

// Statuses returns the status of every product ordered by name, then id.
func Statuses(ctx context.Context, repo Repository) ([]ProductStatus, error) {
	products, err := repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]ProductStatus, 0, len(products))
	for _, p := range products {
		s, err := StatusOf(ctx, repo, p)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}

	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].ProductName != statuses[j].ProductName {
			return statuses[i].ProductName < statuses[j].ProductName
		}
		return statuses[i].ProductID < statuses[j].ProductID
	})
	return statuses, nil
}
