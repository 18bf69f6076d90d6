package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/domain/shared"
	"github.com/textile/backend/internal/infrastructure/docstore"
	"go.uber.org/zap"
)

// errAlreadyLinked stops a transaction whose order already points at the
// requested invoice. Nothing needs writing.
var errAlreadyLinked = fmt.Errorf("order already linked: %w", docstore.ErrAbort)

// DocInvoiceRepository stores the invoices of one workflow and maintains the
// invoice links on that workflow's orders.
type DocInvoiceRepository struct {
	store    docstore.Store
	invoices string
	orders   string
	logger   *zap.Logger
}

// NewDocInvoiceRepository creates an invoice repository. invoices and orders
// are the collection paths of the workflow.
func NewDocInvoiceRepository(store docstore.Store, invoices, orders string, logger *zap.Logger) *DocInvoiceRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocInvoiceRepository{
		store:    store,
		invoices: invoices,
		orders:   orders,
		logger:   logger.Named("invoice_repository"),
	}
}

func (r *DocInvoiceRepository) invoicePath(number int64) string {
	return docstore.Join(r.invoices, strconv.FormatInt(number, 10))
}

func (r *DocInvoiceRepository) orderPath(id string) string {
	return docstore.Join(r.orders, id)
}

func invoiceNotFound(number int64) error {
	return shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Invoice %d not found", number))
}

func orderNotFound(id string) error {
	return shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Order %s not found", id))
}

func orderAlreadyInvoiced(id string, number int64) error {
	return fmt.Errorf("order %s (invoice %d): %w", id, number, sales.ErrOrderAlreadyInvoiced)
}

// Get loads an invoice by number
func (r *DocInvoiceRepository) Get(ctx context.Context, number int64) (*sales.Invoice, error) {
	var rec InvoiceRecord
	if err := docstore.GetJSON(ctx, r.store, r.invoicePath(number), &rec); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, invoiceNotFound(number)
		}
		return nil, err
	}
	return rec.ToDomain(number), nil
}

// List returns all invoices ordered by number
func (r *DocInvoiceRepository) List(ctx context.Context) ([]sales.Invoice, error) {
	docs, err := r.store.List(ctx, r.invoices)
	if err != nil {
		return nil, err
	}
	invoices := make([]sales.Invoice, 0, len(docs))
	for _, d := range docs {
		number, _ := strconv.ParseInt(d.Key(), 10, 64)
		var rec InvoiceRecord
		if err := d.Decode(&rec); err != nil {
			r.logger.Warn("Skipping undecodable invoice", zap.String("path", d.Path), zap.Error(err))
			continue
		}
		inv := rec.ToDomain(number)
		if inv.Number == 0 {
			continue
		}
		invoices = append(invoices, *inv)
	}
	sort.SliceStable(invoices, func(i, j int) bool { return invoices[i].Number < invoices[j].Number })
	return invoices, nil
}

// LinkAtomic writes the invoice and links every source order in one
// transaction. The transaction fails without writing when the invoice number
// is taken, an order is missing or an order is already invoiced.
func (r *DocInvoiceRepository) LinkAtomic(ctx context.Context, inv *sales.Invoice) error {
	body, err := json.Marshal(NewInvoiceRecord(inv))
	if err != nil {
		return fmt.Errorf("encode invoice %d: %w", inv.Number, err)
	}

	invPath := r.invoicePath(inv.Number)
	paths := make([]string, 0, len(inv.SourceOrderIDs)+1)
	paths = append(paths, invPath)
	for _, id := range inv.SourceOrderIDs {
		paths = append(paths, r.orderPath(id))
	}

	err = r.store.TransactMulti(ctx, paths, func(current map[string]json.RawMessage) (map[string]json.RawMessage, error) {
		if _, taken := current[invPath]; taken {
			return nil, fmt.Errorf("invoice %d: %w", inv.Number, shared.ErrAlreadyExists)
		}
		writes := map[string]json.RawMessage{invPath: body}
		for _, id := range inv.SourceOrderIDs {
			p := r.orderPath(id)
			raw, ok := current[p]
			if !ok {
				return nil, orderNotFound(id)
			}
			next, err := linkOrder(raw, id, inv.Number)
			if err != nil {
				return nil, err
			}
			writes[p] = next
		}
		return writes, nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("Invoice linked",
		zap.Int64("invoice_number", inv.Number),
		zap.Int("orders", len(inv.SourceOrderIDs)))
	return nil
}

// Create writes the invoice document only
func (r *DocInvoiceRepository) Create(ctx context.Context, inv *sales.Invoice) error {
	body, err := json.Marshal(NewInvoiceRecord(inv))
	if err != nil {
		return fmt.Errorf("encode invoice %d: %w", inv.Number, err)
	}
	_, err = r.store.Transact(ctx, r.invoicePath(inv.Number), func(current json.RawMessage) (json.RawMessage, error) {
		if current != nil {
			return nil, fmt.Errorf("invoice %d: %w", inv.Number, shared.ErrAlreadyExists)
		}
		return body, nil
	})
	return err
}

// MarkOrderInvoiced links one order to number if it is not linked yet
func (r *DocInvoiceRepository) MarkOrderInvoiced(ctx context.Context, orderID string, number int64) error {
	_, err := r.store.Transact(ctx, r.orderPath(orderID), func(current json.RawMessage) (json.RawMessage, error) {
		if current == nil {
			return nil, orderNotFound(orderID)
		}
		return linkOrder(current, orderID, number)
	})
	if errors.Is(err, errAlreadyLinked) {
		return nil
	}
	return err
}

// UpdateStatus changes the payment status of an invoice
func (r *DocInvoiceRepository) UpdateStatus(ctx context.Context, number int64, status sales.InvoiceStatus) (*sales.Invoice, error) {
	var updated *sales.Invoice
	_, err := r.store.Transact(ctx, r.invoicePath(number), func(current json.RawMessage) (json.RawMessage, error) {
		if current == nil {
			return nil, invoiceNotFound(number)
		}
		var rec InvoiceRecord
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, fmt.Errorf("decode invoice %d: %w", number, err)
		}
		inv := rec.ToDomain(number)
		if err := inv.SetStatus(status); err != nil {
			return nil, err
		}
		updated = inv
		return docstore.MergeFields(current, map[string]json.RawMessage{
			"status": mustJSON(string(status)),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the invoice and detaches its source orders in one
// transaction. Orders that point at a different invoice are left untouched.
func (r *DocInvoiceRepository) Delete(ctx context.Context, number int64) ([]string, error) {
	inv, err := r.Get(ctx, number)
	if err != nil {
		return nil, err
	}

	invPath := r.invoicePath(number)
	paths := []string{invPath}
	for _, id := range inv.SourceOrderIDs {
		paths = append(paths, r.orderPath(id))
	}

	var detached []string
	err = r.store.TransactMulti(ctx, paths, func(current map[string]json.RawMessage) (map[string]json.RawMessage, error) {
		if _, ok := current[invPath]; !ok {
			return nil, invoiceNotFound(number)
		}
		detached = detached[:0]
		writes := map[string]json.RawMessage{invPath: nil}
		for _, id := range inv.SourceOrderIDs {
			p := r.orderPath(id)
			raw, ok := current[p]
			if !ok {
				continue
			}
			next, changed, err := detachOrder(raw, id, number)
			if err != nil {
				return nil, err
			}
			if changed {
				writes[p] = next
				detached = append(detached, id)
			}
		}
		return writes, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Invoice deleted",
		zap.Int64("invoice_number", number),
		zap.Strings("detached_orders", detached))
	return detached, nil
}

// Watch streams changes to the invoice collection until ctx is done
func (r *DocInvoiceRepository) Watch(ctx context.Context) (<-chan sales.InvoiceEvent, error) {
	events, err := r.store.Subscribe(ctx, r.invoices)
	if err != nil {
		return nil, err
	}

	out := make(chan sales.InvoiceEvent, cap(events))
	go func() {
		defer close(out)
		for ev := range events {
			if docstore.Parent(ev.Path) != r.invoices {
				continue
			}
			number, err := strconv.ParseInt(docstore.Base(ev.Path), 10, 64)
			if err != nil {
				continue
			}
			ie := sales.InvoiceEvent{Number: number, Deleted: ev.Deleted}
			if !ev.Deleted {
				var rec InvoiceRecord
				if err := json.Unmarshal(ev.Value, &rec); err != nil {
					r.logger.Warn("Skipping undecodable invoice event", zap.String("path", ev.Path), zap.Error(err))
					continue
				}
				ie.Invoice = rec.ToDomain(number)
			}
			select {
			case out <- ie:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// linkOrder returns the order document with its invoice link set. Only the
// link fields are patched; everything else stored on the order is kept.
func linkOrder(raw json.RawMessage, id string, number int64) (json.RawMessage, error) {
	var rec OrderRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", id, err)
	}
	order := rec.ToDomain(id)
	if order.IsInvoiced() {
		if order.InvoiceNumber == number {
			return nil, errAlreadyLinked
		}
		return nil, orderAlreadyInvoiced(id, order.InvoiceNumber)
	}
	if err := order.MarkInvoiced(number); err != nil {
		return nil, err
	}
	return docstore.MergeFields(raw, map[string]json.RawMessage{
		"invoiced":      mustJSON(true),
		"invoiceNumber": mustJSON(number),
		"status":        mustJSON(string(sales.OrderStatusInvoiced)),
	})
}

func detachOrder(raw json.RawMessage, id string, number int64) (json.RawMessage, bool, error) {
	var rec OrderRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode order %s: %w", id, err)
	}
	order := rec.ToDomain(id)
	if !order.Detach(number) {
		return raw, false, nil
	}
	next, err := docstore.MergeFields(raw, map[string]json.RawMessage{
		"invoiced":      mustJSON(false),
		"invoiceNumber": json.RawMessage("null"),
		"status":        mustJSON(string(order.Status)),
	})
	return next, true, err
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

var _ sales.InvoiceRepository = (*DocInvoiceRepository)(nil)
