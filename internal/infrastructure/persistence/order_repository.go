package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/domain/shared"
	"github.com/textile/backend/internal/infrastructure/docstore"
)

// DocOrderRepository reads orders kept under one collection path
type DocOrderRepository struct {
	store      docstore.Store
	collection string
	logger     *zap.Logger
}

// NewDocOrderRepository creates a repository for orders under collection
func NewDocOrderRepository(store docstore.Store, collection string, logger *zap.Logger) *DocOrderRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocOrderRepository{store: store, collection: collection, logger: logger.Named("order_repository")}
}

// Collection returns the collection path
func (r *DocOrderRepository) Collection() string {
	return r.collection
}

// Get loads one order
func (r *DocOrderRepository) Get(ctx context.Context, id string) (*sales.Order, error) {
	var rec OrderRecord
	if err := docstore.GetJSON(ctx, r.store, docstore.Join(r.collection, id), &rec); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Order %s not found", id))
		}
		return nil, err
	}
	o := rec.ToDomain(id)
	return &o, nil
}

// ListByCustomer returns the customer's orders in key order. Documents that
// cannot be decoded are skipped.
func (r *DocOrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]sales.Order, error) {
	docs, err := r.store.List(ctx, r.collection)
	if err != nil {
		return nil, err
	}
	orders := make([]sales.Order, 0)
	for _, d := range docs {
		var rec OrderRecord
		if err := json.Unmarshal(d.Value, &rec); err != nil {
			r.logger.Warn("Skipping undecodable order", zap.String("path", d.Path), zap.Error(err))
			continue
		}
		if rec.CustomerID != customerID {
			continue
		}
		orders = append(orders, rec.ToDomain(d.Key()))
	}
	return orders, nil
}

// Save stores a new or changed order. Used by order entry and tests.
func (r *DocOrderRepository) Save(ctx context.Context, o *sales.Order) error {
	rec := OrderRecord{
		CustomerID:    o.CustomerID,
		Date:          FlexDate{o.OrderedOn},
		Status:        string(o.Status),
		Invoiced:      o.Invoiced,
		InvoiceNumber: FlexInt(o.InvoiceNumber),
	}
	for _, it := range o.Items {
		rec.Items = append(rec.Items, LineItemRecord{
			ItemCode:    it.Code,
			ItemName:    it.Name,
			Description: it.Description,
			Quantity:    FlexInt(it.Quantity),
			Price:       it.UnitPrice,
			Currency:    it.Currency,
		})
	}
	return docstore.SetJSON(ctx, r.store, docstore.Join(r.collection, o.ID), rec)
}

var _ sales.OrderRepository = (*DocOrderRepository)(nil)
