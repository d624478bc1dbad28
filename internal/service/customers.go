package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Customers, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	idx := slices.IndexFunc(snap.Customers, func(c domain.Customer) bool { return c.ID == id })
	if idx < 0 {
		return domain.Customer{}, ErrCustomerNotFound
	}
	return snap.Customers[idx], nil
}

func (s *Service) AddCustomer(ctx context.Context, req domain.CustomerInput) (domain.Customer, error) {
	req = normalizeCustomerInput(req)
	if req.Name == "" {
		return domain.Customer{}, ErrInvalidCustomer
	}

	var created domain.Customer
	_, err := s.mutate(ctx, "add_customer", nil, func(snap *store.Snapshot) ([]store.Collection, error) {
		if matchCustomer(snap.Customers, req.Phone, req.Name) >= 0 {
			return nil, ErrDuplicateCustomer
		}
		now := s.now().UTC()
		created = domain.Customer{
			ID:         xid.New("cus"),
			Name:       req.Name,
			Phone:      req.Phone,
			Email:      req.Email,
			InvoiceIDs: []string{},
			CreatedAt:  now,
		}
		snap.Customers = append(snap.Customers, created)
		return []store.Collection{store.Customers}, nil
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", created.ID, nil)
	return created, nil
}

func normalizeCustomerInput(in domain.CustomerInput) domain.CustomerInput {
	return domain.CustomerInput{
		Name:  strings.TrimSpace(in.Name),
		Phone: strings.TrimSpace(in.Phone),
		Email: strings.TrimSpace(in.Email),
	}
}

// matchCustomer finds a customer by phone when one is given, else by exact name.
func matchCustomer(customers []domain.Customer, phone string, name string) int {
	if phone != "" {
		return slices.IndexFunc(customers, func(c domain.Customer) bool { return c.Phone == phone })
	}
	return slices.IndexFunc(customers, func(c domain.Customer) bool { return c.Name == name })
}

// upsertCustomer links invoiceID to the matching customer, creating one when
// nobody matches.
func upsertCustomer(customers []domain.Customer, in domain.CustomerInput, invoiceID string, at time.Time) []domain.Customer {
	if idx := matchCustomer(customers, in.Phone, in.Name); idx >= 0 {
		c := customers[idx]
		c.InvoiceIDs = append(c.InvoiceIDs, invoiceID)
		c.LastPurchaseAt = at
		if in.Email != "" {
			c.Email = in.Email
		}
		customers[idx] = c
		return customers
	}
	return append(customers, domain.Customer{
		ID:             xid.New("cus"),
		Name:           in.Name,
		Phone:          in.Phone,
		Email:          in.Email,
		InvoiceIDs:     []string{invoiceID},
		CreatedAt:      at,
		LastPurchaseAt: at,
	})
}
