package memory

import (
	"context"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// ProductRepository implements product.Repository.
type ProductRepository struct {
	db *DB
}

var _ product.Repository = (*ProductRepository)(nil)

func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.db.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// AddressRepository implements address.Repository.
type AddressRepository struct {
	db *DB
}

var _ address.Repository = (*AddressRepository)(nil)

func (r *AddressRepository) GetByID(_ context.Context, userID, id string) (*address.Address, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.addresses[id]
	if !ok || a.UserID != userID {
		return nil, address.ErrNotFound
	}
	return &a, nil
}
