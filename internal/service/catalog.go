package service

import (
	"context"
	"slices"
	"strings"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	products := snap.Products
	slices.SortStableFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Code, b.Code)
	})
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	idx := productIndex(snap.Products, id)
	if idx < 0 {
		return domain.Product{}, ErrProductNotFound
	}
	return snap.Products[idx], nil
}

func (s *Service) AddProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if req.Code == "" || req.Name == "" || req.StockQuantity < 0 || req.MinStock < 0 {
		return domain.Product{}, ErrInvalidProduct
	}
	if !req.CostPrice.IsPositive() || !req.WholesalePrice.IsPositive() || !req.SalePrice.IsPositive() {
		return domain.Product{}, ErrInvalidProduct
	}

	var created domain.Product
	_, err := s.mutate(ctx, "add_product", nil, func(snap *store.Snapshot) ([]store.Collection, error) {
		if codeTaken(snap.Products, req.Code, "") {
			return nil, ErrDuplicateProductCode
		}
		now := s.now().UTC()
		created = domain.Product{
			ID:             xid.New("prd"),
			Code:           req.Code,
			Name:           req.Name,
			CostPrice:      round2(req.CostPrice),
			WholesalePrice: round2(req.WholesalePrice),
			SalePrice:      round2(req.SalePrice),
			StockQuantity:  req.StockQuantity,
			MinStock:       req.MinStock,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		snap.Products = append(snap.Products, created)
		return []store.Collection{store.Products}, nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, map[string]any{"code": created.Code, "stock": created.StockQuantity})
	return created, nil
}

// UpdateProduct edits catalog data. Stock only moves through invoices and returns.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	var updated domain.Product
	_, err := s.mutate(ctx, "update_product", nil, func(snap *store.Snapshot) ([]store.Collection, error) {
		idx := productIndex(snap.Products, id)
		if idx < 0 {
			return nil, ErrProductNotFound
		}
		product := snap.Products[idx]

		if req.Code != nil {
			code := strings.ToUpper(strings.TrimSpace(*req.Code))
			if code == "" {
				return nil, ErrInvalidProduct
			}
			if codeTaken(snap.Products, code, product.ID) {
				return nil, ErrDuplicateProductCode
			}
			product.Code = code
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return nil, ErrInvalidProduct
			}
			product.Name = name
		}
		if req.CostPrice != nil {
			if !req.CostPrice.IsPositive() {
				return nil, ErrInvalidProduct
			}
			product.CostPrice = round2(*req.CostPrice)
		}
		if req.WholesalePrice != nil {
			if !req.WholesalePrice.IsPositive() {
				return nil, ErrInvalidProduct
			}
			product.WholesalePrice = round2(*req.WholesalePrice)
		}
		if req.SalePrice != nil {
			if !req.SalePrice.IsPositive() {
				return nil, ErrInvalidProduct
			}
			product.SalePrice = round2(*req.SalePrice)
		}
		if req.MinStock != nil {
			if *req.MinStock < 0 {
				return nil, ErrInvalidProduct
			}
			product.MinStock = *req.MinStock
		}
		product.UpdatedAt = s.now().UTC()

		snap.Products[idx] = product
		updated = product
		return []store.Collection{store.Products}, nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", updated.ID, map[string]any{"code": updated.Code})
	return updated, nil
}

// DeleteProduct removes the product even when unpaid installments still
// reference it; that case is only logged.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	var (
		removed    domain.Product
		referenced []string
	)
	_, err := s.mutate(ctx, "delete_product", []store.Collection{store.Invoices}, func(snap *store.Snapshot) ([]store.Collection, error) {
		idx := productIndex(snap.Products, id)
		if idx < 0 {
			return nil, ErrProductNotFound
		}
		removed = snap.Products[idx]
		referenced = unpaidInvoicesReferencing(snap.Invoices, removed.ID)
		snap.Products = slices.Delete(snap.Products, idx, idx+1)
		return []store.Collection{store.Products}, nil
	})
	if err != nil {
		return err
	}

	if len(referenced) > 0 {
		warnCtx := s.log.WithFields(ctx, map[string]any{"product_id": removed.ID, "invoice_ids": referenced})
		s.log.Warn(warnCtx, "deleted product is referenced by unpaid installments")
	}
	s.logAudit(ctx, "product_delete", "product", removed.ID, map[string]any{"code": removed.Code})
	return nil
}

// LowStock lists products that are out of stock.
func (s *Service) LowStock(ctx context.Context) ([]domain.Product, error) {
	return s.filterProducts(ctx, func(p domain.Product) bool {
		return p.StockQuantity <= 0
	})
}

// BelowMinimum lists products at or under their configured minimum.
func (s *Service) BelowMinimum(ctx context.Context) ([]domain.Product, error) {
	return s.filterProducts(ctx, func(p domain.Product) bool {
		return p.MinStock > 0 && p.StockQuantity <= p.MinStock
	})
}

func (s *Service) filterProducts(ctx context.Context, keep func(domain.Product) bool) ([]domain.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0)
	for _, p := range products {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func productIndex(products []domain.Product, id string) int {
	id = strings.TrimSpace(id)
	if id == "" {
		return -1
	}
	return slices.IndexFunc(products, func(p domain.Product) bool { return p.ID == id })
}

func codeTaken(products []domain.Product, code string, exceptID string) bool {
	return slices.ContainsFunc(products, func(p domain.Product) bool {
		return p.ID != exceptID && strings.EqualFold(p.Code, code)
	})
}

func unpaidInvoicesReferencing(invoices []domain.Invoice, productID string) []string {
	var ids []string
	for _, inv := range invoices {
		if !hasUnpaidInstallment(inv) {
			continue
		}
		if slices.ContainsFunc(inv.Items, func(item domain.InvoiceItem) bool { return item.Product.ID == productID }) {
			ids = append(ids, inv.ID)
		}
	}
	return ids
}

func hasUnpaidInstallment(inv domain.Invoice) bool {
	return slices.ContainsFunc(inv.Installments, func(i domain.Installment) bool { return !i.Paid })
}
