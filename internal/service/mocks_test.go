package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/store"
)

// fakeProducts serves product reads from the shared stock table so
// checkout validation sees the same stock the committer mutates.
type fakeProducts struct {
	mu       sync.Mutex
	products map[int64]models.Product
}

func newFakeProducts(products ...models.Product) *fakeProducts {
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &fakeProducts{products: byID}
}

func (f *fakeProducts) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	cp := p
	return &cp, nil
}

func (f *fakeProducts) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) setStock(id int64, stock int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.products[id]
	p.StockQuantity = stock
	f.products[id] = p
}

func (f *fakeProducts) stockOf(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].StockQuantity
}

func (f *fakeProducts) delete(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.products, id)
}

// fakeCartStorage is an in-memory CartStorage preserving insertion order
type fakeCartStorage struct {
	mu    sync.Mutex
	items map[string]map[int64]int
	order map[string][]int64
}

func newFakeCartStorage() *fakeCartStorage {
	return &fakeCartStorage{
		items: make(map[string]map[int64]int),
		order: make(map[string][]int64),
	}
}

func (f *fakeCartStorage) AddItem(_ context.Context, sessionID string, productID int64, limit int) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := f.cart(sessionID)
	if cart[productID] >= limit {
		return 0, false, nil
	}
	if cart[productID] == 0 {
		f.order[sessionID] = append(f.order[sessionID], productID)
	}
	cart[productID]++
	return int64(cart[productID]), true, nil
}

func (f *fakeCartStorage) SetItem(_ context.Context, sessionID string, productID int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := f.cart(sessionID)
	if _, ok := cart[productID]; !ok {
		f.order[sessionID] = append(f.order[sessionID], productID)
	}
	cart[productID] = qty
	return nil
}

func (f *fakeCartStorage) RemoveItem(_ context.Context, sessionID string, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := f.cart(sessionID)
	if _, ok := cart[productID]; !ok {
		return nil
	}
	delete(cart, productID)
	ids := f.order[sessionID]
	for i, id := range ids {
		if id == productID {
			f.order[sessionID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeCartStorage) ClearCart(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, sessionID)
	delete(f.order, sessionID)
	return nil
}

func (f *fakeCartStorage) GetCart(_ context.Context, sessionID string) ([]models.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := f.cart(sessionID)
	lines := make([]models.CartLine, 0, len(cart))
	for _, id := range f.order[sessionID] {
		if qty, ok := cart[id]; ok && qty > 0 {
			lines = append(lines, models.CartLine{ProductID: id, Quantity: qty})
		}
	}
	return lines, nil
}

func (f *fakeCartStorage) cart(sessionID string) map[int64]int {
	if f.items[sessionID] == nil {
		f.items[sessionID] = make(map[int64]int)
	}
	return f.items[sessionID]
}

// fakeOrderStore commits orders against the shared product table with
// the same all-or-nothing conditional-decrement semantics as the real
// transaction.
type fakeOrderStore struct {
	mu       sync.Mutex
	products *fakeProducts
	orders   []models.Order
	lines    map[int64][]models.OrderLine
	nextID   int64
	failWith error
}

func newFakeOrderStore(products *fakeProducts) *fakeOrderStore {
	return &fakeOrderStore{
		products: products,
		lines:    make(map[int64][]models.OrderLine),
	}
}

func (f *fakeOrderStore) CreateOrderTx(_ context.Context, order *models.Order, lines []models.OrderLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return f.failWith
	}

	for _, line := range lines {
		available := f.products.stockOf(line.ProductID)
		if available < line.Quantity {
			return &store.StockConflictError{
				ProductID: line.ProductID,
				Available: available,
				Requested: line.Quantity,
			}
		}
	}

	for i := range lines {
		f.products.setStock(lines[i].ProductID, f.products.stockOf(lines[i].ProductID)-lines[i].Quantity)
	}

	f.nextID++
	order.ID = f.nextID
	order.CreatedAt = time.Now()
	for i := range lines {
		lines[i].OrderID = order.ID
		lines[i].ID = int64(i + 1)
	}

	f.orders = append(f.orders, *order)
	f.lines[order.ID] = append([]models.OrderLine(nil), lines...)
	return nil
}

func (f *fakeOrderStore) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// fixedCart is a CartAccess returning a canned snapshot, for paths the
// real cart service would prune away before checkout sees them
type fixedCart struct {
	snapshot []models.CartLine
	cleared  bool
}

func (f *fixedCart) Snapshot(context.Context, string) ([]models.CartLine, error) {
	return f.snapshot, nil
}

func (f *fixedCart) Clear(context.Context, string) error {
	f.cleared = true
	return nil
}
