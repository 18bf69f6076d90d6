package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/domain/shared"
	"github.com/textile/backend/internal/infrastructure/docstore"
)

// DocCustomerRepository reads customers kept under one collection path
type DocCustomerRepository struct {
	store      docstore.Store
	collection string
}

// NewDocCustomerRepository creates a repository for customers under collection
func NewDocCustomerRepository(store docstore.Store, collection string) *DocCustomerRepository {
	return &DocCustomerRepository{store: store, collection: collection}
}

// Get loads a customer
func (r *DocCustomerRepository) Get(ctx context.Context, id string) (*sales.Customer, error) {
	var rec CustomerRecord
	if err := docstore.GetJSON(ctx, r.store, docstore.Join(r.collection, id), &rec); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Customer %s not found", id))
		}
		return nil, err
	}
	return rec.ToDomain(id), nil
}

// Save stores a customer
func (r *DocCustomerRepository) Save(ctx context.Context, c *sales.Customer) error {
	rec := CustomerRecord{Name: c.Name, Address: c.Address, Phone: c.Phone, Email: c.Email}
	return docstore.SetJSON(ctx, r.store, docstore.Join(r.collection, c.ID), rec)
}

var _ sales.CustomerRepository = (*DocCustomerRepository)(nil)
