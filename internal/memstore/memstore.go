// Package memstore implements the checkout repositories in process memory.
// It backs the memory storage mode and the service tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/sourcemart/internal/domain/cart"
	"github.com/xenking/sourcemart/internal/domain/coupon"
	"github.com/xenking/sourcemart/internal/domain/order"
	"github.com/xenking/sourcemart/internal/domain/product"
	"github.com/xenking/sourcemart/internal/domain/user"
)

// ErrOrderNotFound is returned when a line references a missing header.
var ErrOrderNotFound = errors.New("order not found")

type cartKey struct {
	buyerID   string
	productID string
}

// Store holds every table. The zero value is not usable; call New.
type Store struct {
	mu sync.RWMutex

	products map[string]product.Product
	users    map[string]user.User
	coupons  map[string]coupon.Coupon // by code
	orders   map[string]order.Order
	numbers  map[string]string // order number -> order id
	lines    map[string][]order.Line
	carts    map[cartKey]struct{}

	now func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		products: make(map[string]product.Product),
		users:    make(map[string]user.User),
		coupons:  make(map[string]coupon.Coupon),
		orders:   make(map[string]order.Order),
		numbers:  make(map[string]string),
		lines:    make(map[string][]order.Line),
		carts:    make(map[cartKey]struct{}),
		now:      time.Now,
	}
}

// Products returns the product repository view.
func (s *Store) Products() *Products { return &Products{s: s} }

// Users returns the user repository view.
func (s *Store) Users() *Users { return &Users{s: s} }

// Coupons returns the coupon repository view.
func (s *Store) Coupons() *Coupons { return &Coupons{s: s} }

// Orders returns the order repository view.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Carts returns the cart repository view.
func (s *Store) Carts() *Carts { return &Carts{s: s} }

// UpsertUser inserts or replaces u.
func (s *Store) UpsertUser(_ context.Context, u user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// UpsertProduct inserts or replaces p.
func (s *Store) UpsertProduct(_ context.Context, p product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

// UpsertCoupon inserts or replaces c, keyed by its normalized code. The id and
// usage counter of an existing coupon are preserved.
func (s *Store) UpsertCoupon(_ context.Context, c coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = coupon.NormalizeCode(c.Code)
	if prev, ok := s.coupons[c.Code]; ok {
		c.ID = prev.ID
		c.UsageCount = prev.UsageCount
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.coupons[c.Code] = c
	return nil
}

// AddCartEntry puts productID in the buyer's cart.
func (s *Store) AddCartEntry(_ context.Context, buyerID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[cartKey{buyerID: buyerID, productID: productID}] = struct{}{}
	return nil
}

// HasCartEntry reports whether productID is in the buyer's cart.
func (s *Store) HasCartEntry(buyerID, productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.carts[cartKey{buyerID: buyerID, productID: productID}]
	return ok
}

// Order returns the stored header with the given id.
func (s *Store) Order(id string) (order.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o, ok
}

// OrderCount returns the number of stored headers.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// Lines returns the lines of an order.
func (s *Store) Lines(orderID string) []order.Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]order.Line(nil), s.lines[orderID]...)
}

// Coupon returns the stored coupon for code.
func (s *Store) Coupon(code string) (coupon.Coupon, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.coupons[coupon.NormalizeCode(code)]
	return c, ok
}

// OrphanedHeaders returns ids of headers without lines, sorted.
func (s *Store) OrphanedHeaders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.orders {
		if len(s.lines[id]) == 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Products implements product.Repository.
type Products struct{ s *Store }

var _ product.Repository = (*Products)(nil)

func (r *Products) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// Users implements user.Repository.
type Users struct{ s *Store }

var _ user.Repository = (*Users)(nil)

func (r *Users) GetByID(_ context.Context, id string) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

// Coupons implements coupon.Repository.
type Coupons struct{ s *Store }

var _ coupon.Repository = (*Coupons)(nil)

func (r *Coupons) FindByCode(_ context.Context, code string, at time.Time) (*coupon.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.coupons[coupon.NormalizeCode(code)]
	if !ok || !c.Active || at.Before(c.ValidFrom) || at.After(c.ValidUntil) {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

func (r *Coupons) IncrementUsage(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for code, c := range r.s.coupons {
		if c.ID != id {
			continue
		}
		if c.Exhausted() {
			return coupon.ErrUsageLimitReached
		}
		c.UsageCount++
		r.s.coupons[code] = c
		return nil
	}
	return coupon.ErrNotFound
}

// Orders implements order.Repository.
type Orders struct{ s *Store }

var _ order.Repository = (*Orders)(nil)

func (r *Orders) CreateHeader(_ context.Context, o *order.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.numbers[o.Number]; ok {
		return order.ErrDuplicateNumber
	}
	if _, ok := r.s.orders[o.ID]; ok {
		return errors.Errorf("order %s already exists", o.ID)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = r.s.now()
	}
	r.s.orders[o.ID] = *o
	r.s.numbers[o.Number] = o.ID
	return nil
}

func (r *Orders) CreateLine(_ context.Context, l *order.Line) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[l.OrderID]; !ok {
		return errors.Wrap(ErrOrderNotFound, l.OrderID)
	}
	r.s.lines[l.OrderID] = append(r.s.lines[l.OrderID], *l)
	return nil
}

func (r *Orders) DeleteHeader(_ context.Context, orderID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return nil
	}
	delete(r.s.numbers, o.Number)
	delete(r.s.orders, orderID)
	delete(r.s.lines, orderID)
	return nil
}

// Carts implements cart.Repository.
type Carts struct{ s *Store }

var _ cart.Repository = (*Carts)(nil)

func (r *Carts) DeleteEntry(_ context.Context, buyerID, productID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.carts, cartKey{buyerID: strings.TrimSpace(buyerID), productID: strings.TrimSpace(productID)})
	return nil
}
