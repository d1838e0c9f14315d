package product

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/money"
)

// Entry is the request-scoped view of a product with its price converted
// to minor units.
type Entry struct {
	ID         string
	Name       string
	Price      money.Minor
	CategoryID string
	Image      string
}

// Snapshot is an immutable set of catalog entries read once per request.
// Pricing, eligibility and order line construction all read the same
// snapshot so a concurrent catalog update cannot split a single request.
type Snapshot struct {
	entries map[string]Entry
}

// NewSnapshot builds a snapshot from already converted entries.
func NewSnapshot(entries ...Entry) Snapshot {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.ID] = e
	}
	return Snapshot{entries: m}
}

// Get returns the entry for id.
func (s Snapshot) Get(id string) (Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Len reports the number of entries.
func (s Snapshot) Len() int { return len(s.entries) }

// Reader takes catalog snapshots.
type Reader struct {
	repo Repository
}

// NewReader creates a Reader over the given repository.
func NewReader(repo Repository) *Reader {
	return &Reader{repo: repo}
}

// Snapshot resolves ids in a single batch. Every id must exist; the first
// missing one (in request order) is reported as *NotFoundError.
func (r *Reader) Snapshot(ctx context.Context, ids []string) (Snapshot, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	products, err := r.repo.GetByIDs(ctx, unique)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "get products")
	}

	entries := make(map[string]Entry, len(products))
	for _, p := range products {
		price, err := money.FromMajor(p.Price)
		if err != nil {
			return Snapshot{}, errors.Wrapf(err, "product %s price", p.ID)
		}
		entries[p.ID] = Entry{
			ID:         p.ID,
			Name:       p.Name,
			Price:      price,
			CategoryID: p.CategoryID,
			Image:      p.Image,
		}
	}

	for _, id := range unique {
		if _, ok := entries[id]; !ok {
			return Snapshot{}, &NotFoundError{ProductID: id}
		}
	}
	return Snapshot{entries: entries}, nil
}
