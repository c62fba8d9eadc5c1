// Package report resolves product reports to object-store keys and serves
// them. A report is an HTML artefact produced elsewhere and stored under a
// key derived from the product name and the grouping axis.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tomasbasham/testgrid-gateway/internal/product"
	"github.com/tomasbasham/testgrid-gateway/internal/storage"
)

var (
	// ErrInvalidAxis is returned when the grouping axis is not recognised.
	ErrInvalidAxis = errors.New("report: invalid grouping axis")

	// ErrProductNotFound is returned when the product does not exist.
	ErrProductNotFound = errors.New("report: product not found")

	// ErrArtifactNotFound is returned when the product exists but its report
	// does not, including when it disappears between probe and fetch.
	ErrArtifactNotFound = errors.New("report: artifact not found")
)

// StoreError wraps a failure to initialise or talk to the object store.
type StoreError struct {
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("report: object store failure for %q: %v", e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ContentType is the media type reports are served with.
const ContentType = "application/octet-stream"

// Request identifies a report.
type Request struct {
	ProductName string

	// GroupBy is the grouping axis name; empty selects DefaultAxis.
	GroupBy string

	// ShowSuccess is accepted but not used when deriving the key. The stored
	// report carries both passing and failing results.
	ShowSuccess bool
}

// Report is an open report stream ready to be sent to a client. The caller
// must close Body exactly once.
type Report struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// Disposition is the Content-Disposition header value for the report.
func (r *Report) Disposition() string {
	return fmt.Sprintf("attachment; filename=%q", r.Filename)
}

// Gateway looks reports up in the object store.
type Gateway struct {
	products product.Finder
	open     storage.Opener
	logger   *slog.Logger
}

// NewGateway creates a Gateway. A nil logger discards output.
func NewGateway(products product.Finder, open storage.Opener, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gateway{products: products, open: open, logger: logger}
}

// CheckExists reports whether the requested report is present without
// downloading it.
func (g *Gateway) CheckExists(ctx context.Context, req Request) (bool, error) {
	t, reader, err := g.prepare(ctx, req)
	if err != nil {
		return false, err
	}

	ok, err := reader.Exists(ctx, t.key)
	if err != nil {
		g.logger.Error("report existence check failed", "key", t.key, "error", err)
		return false, &StoreError{Key: t.key, Err: err}
	}
	return ok, nil
}

// Fetch opens the requested report for streaming.
func (g *Gateway) Fetch(ctx context.Context, req Request) (*Report, error) {
	t, reader, err := g.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	obj, err := reader.Open(ctx, t.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, t.key)
	}
	if err != nil {
		g.logger.Error("report fetch failed", "key", t.key, "error", err)
		return nil, &StoreError{Key: t.key, Err: err}
	}

	return &Report{
		Filename:    t.filename,
		ContentType: ContentType,
		Size:        obj.Size,
		Body:        obj.Body,
	}, nil
}

// target is the resolved location of a report.
type target struct {
	key      string
	filename string
}

// prepare validates the axis, resolves the product, derives the key and
// constructs the store reader, in that order. The axis is checked before any
// I/O takes place.
func (g *Gateway) prepare(ctx context.Context, req Request) (target, storage.Reader, error) {
	axis := DefaultAxis
	if req.GroupBy != "" {
		a, err := ParseAxis(req.GroupBy)
		if err != nil {
			return target{}, nil, err
		}
		axis = a
	}

	p, err := g.products.FindByName(ctx, req.ProductName)
	if errors.Is(err, product.ErrNotFound) {
		return target{}, nil, fmt.Errorf("%w: %q", ErrProductNotFound, req.ProductName)
	}
	if err != nil {
		g.logger.Error("product lookup failed", "product", req.ProductName, "error", err)
		return target{}, nil, fmt.Errorf("report: product lookup for %q: %w", req.ProductName, err)
	}

	if !validKeySegment(p.Name) {
		g.logger.Warn("refusing report lookup for unsafe product name", "product", p.Name)
		return target{}, nil, fmt.Errorf("%w: %q", ErrProductNotFound, req.ProductName)
	}

	t := target{key: ResolveKey(p.Name, axis), filename: Filename(p.Name, axis)}
	g.logger.Debug("resolved report key", "product", p.Name, "axis", axis, "show_success", req.ShowSuccess, "key", t.key)

	reader, err := g.open(ctx)
	if err != nil {
		g.logger.Error("object store unavailable", "key", t.key, "error", err)
		return target{}, nil, &StoreError{Key: t.key, Err: err}
	}
	return t, reader, nil
}
