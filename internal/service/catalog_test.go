package service

import (
	"context"
	"errors"
	"testing"

	"posledger/backend/internal/domain"
)

func TestAddProductValidatesAndRejectsDuplicateCode(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := adminCtx()

	created, err := svc.AddProduct(ctx, domain.ProductCreateRequest{
		Code: " dsk001 ", Name: "Desk", CostPrice: money("200"), WholesalePrice: money("240"), SalePrice: money("275.555"), StockQuantity: 4, MinStock: 2,
	})
	if err != nil {
		t.Fatalf("add product: %v", err)
	}
	if created.Code != "DSK001" || created.ID == "" {
		t.Fatalf("expected normalized code and id, got %+v", created)
	}
	assertMoney(t, "sale price rounded", created.SalePrice, "275.56")

	_, err = svc.AddProduct(ctx, domain.ProductCreateRequest{
		Code: "chr001", Name: "Another Chair", CostPrice: money("1"), WholesalePrice: money("1"), SalePrice: money("1"),
	})
	if !errors.Is(err, ErrDuplicateProductCode) {
		t.Fatalf("expected duplicate code, got %v", err)
	}

	_, err = svc.AddProduct(ctx, domain.ProductCreateRequest{Code: "X1", Name: "Free", CostPrice: money("1"), WholesalePrice: money("1")})
	if !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("expected invalid product for zero sale price, got %v", err)
	}
}

func TestUpdateProductNeverTouchesStock(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	name := "Oak Chair"
	price := money("175")
	minStock := 10

	updated, err := svc.UpdateProduct(adminCtx(), "1", domain.ProductUpdateRequest{Name: &name, SalePrice: &price, MinStock: &minStock})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.Name != name || updated.StockQuantity != 50 || updated.MinStock != 10 {
		t.Fatalf("unexpected update result %+v", updated)
	}
	assertMoney(t, "sale price", updated.SalePrice, "175")

	code := "TBL001"
	if _, err := svc.UpdateProduct(adminCtx(), "1", domain.ProductUpdateRequest{Code: &code}); !errors.Is(err, ErrDuplicateProductCode) {
		t.Fatalf("expected duplicate code, got %v", err)
	}
	if _, err := svc.UpdateProduct(adminCtx(), "missing", domain.ProductUpdateRequest{Name: &name}); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteProductKeepsInvoicesIntact(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	inv, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceLineRequest{line("3", 1)},
		Customer:      domain.CustomerInput{Name: "Shelf Buyer"},
		PaymentMethod: domain.PaymentInstallment,
		Installments:  []domain.InstallmentInput{{Amount: money("180"), DueDate: "2026-04-01"}},
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	if err := svc.DeleteProduct(adminCtx(), "3"); err != nil {
		t.Fatalf("delete referenced product: %v", err)
	}
	if _, err := svc.GetProduct(context.Background(), "3"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product gone, got %v", err)
	}
	match, err := svc.GetInvoice(context.Background(), inv.ID)
	if err != nil || match.Invoice.Items[0].Product.Code != "SHL001" {
		t.Fatalf("invoice snapshot must survive product deletion: %v", err)
	}
	if err := svc.DeleteProduct(adminCtx(), "3"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestStockAlerts(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	cashInvoice(t, svc, cashierCtx(), "Bed Buyer", line("5", 8))
	cashInvoice(t, svc, cashierCtx(), "Wardrobe Buyer", line("4", 9))

	low, err := svc.LowStock(context.Background())
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 1 || low[0].Code != "BED001" {
		t.Fatalf("expected only the empty bed stock, got %+v", low)
	}

	below, err := svc.BelowMinimum(context.Background())
	if err != nil {
		t.Fatalf("below minimum: %v", err)
	}
	if len(below) != 2 || below[0].Code != "BED001" || below[1].Code != "CAB001" {
		t.Fatalf("expected bed and wardrobe below minimum, got %+v", below)
	}
}

func TestListProductsOrderedByCode(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	products, err := svc.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	want := []string{"BED001", "CAB001", "CHR001", "SHL001", "TBL001"}
	for i, code := range want {
		if products[i].Code != code {
			t.Fatalf("expected %s at %d, got %s", code, i, products[i].Code)
		}
	}
}

func TestAddCustomerRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := adminCtx()

	created, err := svc.AddCustomer(ctx, domain.CustomerInput{Name: "Khalid", Phone: "0509"})
	if err != nil {
		t.Fatalf("add customer: %v", err)
	}
	if _, err := svc.AddCustomer(ctx, domain.CustomerInput{Name: "Other Name", Phone: "0509"}); !errors.Is(err, ErrDuplicateCustomer) {
		t.Fatalf("expected duplicate by phone, got %v", err)
	}
	if _, err := svc.AddCustomer(ctx, domain.CustomerInput{Name: " "}); !errors.Is(err, ErrInvalidCustomer) {
		t.Fatalf("expected invalid customer, got %v", err)
	}

	cashInvoice(t, svc, cashierCtx(), "Khalid Renamed", line("1", 1))
	if _, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceLineRequest{line("2", 1)},
		Customer:      domain.CustomerInput{Name: "Anything", Phone: "0509", Email: "k@example.com"},
		PaymentMethod: domain.PaymentCash,
	}); err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	got, err := svc.GetCustomer(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if len(got.InvoiceIDs) != 1 || got.Email != "k@example.com" {
		t.Fatalf("expected phone match to link invoice and update email, got %+v", got)
	}

	customers, _ := svc.ListCustomers(context.Background())
	if len(customers) != 2 {
		t.Fatalf("expected name-only invoice to create a second customer, got %d", len(customers))
	}
}
