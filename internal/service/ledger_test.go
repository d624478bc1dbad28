package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
)

func TestCreateInvoiceComputesTotalsAndTakesStock(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	inv, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		Items:           []domain.InvoiceLineRequest{line("1", 2), line("2", 1)},
		Customer:        domain.CustomerInput{Name: "Layla", Phone: "0501234567"},
		DiscountPercent: decimal.NewFromInt(10),
		PaymentMethod:   domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}

	assertMoney(t, "line 0 total", inv.Items[0].LineTotal, "300")
	assertMoney(t, "subtotal", inv.Subtotal, "550")
	assertMoney(t, "discount", inv.DiscountAmount, "55")
	assertMoney(t, "total", inv.Total, "495")
	assertMoney(t, "tax", inv.TaxAmount, "0")
	if inv.InvoiceNumber != "1" || inv.Epoch != 0 || inv.Reference() != "0-1" {
		t.Fatalf("unexpected numbering %s/%d", inv.InvoiceNumber, inv.Epoch)
	}
	if inv.Status != domain.InvoiceStatusCompleted || inv.ManualTotal {
		t.Fatalf("unexpected status %s manual=%v", inv.Status, inv.ManualTotal)
	}
	if inv.CashierID != "cashier" || inv.CashierName != "Front Cashier" {
		t.Fatalf("expected cashier identity from context, got %s/%s", inv.CashierID, inv.CashierName)
	}
	if got := stockOf(t, svc, "1"); got != 48 {
		t.Fatalf("expected chair stock 48, got %d", got)
	}
	if got := stockOf(t, svc, "2"); got != 19 {
		t.Fatalf("expected table stock 19, got %d", got)
	}

	customers, err := svc.ListCustomers(context.Background())
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(customers) != 1 || customers[0].InvoiceIDs[0] != inv.ID {
		t.Fatalf("expected customer linked to invoice, got %+v", customers)
	}
}

func TestCreateInvoiceNumbersSequentially(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := cashierCtx()

	for i, name := range []string{"A", "B", "C"} {
		inv := cashInvoice(t, svc, ctx, name, line("3", 1))
		want := []string{"1", "2", "3"}[i]
		if inv.InvoiceNumber != want {
			t.Fatalf("expected number %s, got %s", want, inv.InvoiceNumber)
		}
	}

	live, err := svc.ListLive(ctx)
	if err != nil {
		t.Fatalf("list live: %v", err)
	}
	if len(live) != 3 || live[0].CustomerName != "A" || live[2].CustomerName != "C" {
		t.Fatalf("expected live invoices in insertion order, got %d", len(live))
	}
}

func TestCreateInvoiceInsufficientStockMutatesNothing(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	_, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceLineRequest{line("1", 1), line("5", 5), line("5", 4)},
		Customer:      domain.CustomerInput{Name: "Big Order"},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock across summed lines, got %v", err)
	}
	if got := stockOf(t, svc, "1"); got != 50 {
		t.Fatalf("chair stock must be untouched, got %d", got)
	}
	if got := stockOf(t, svc, "5"); got != 8 {
		t.Fatalf("bed stock must be untouched, got %d", got)
	}
	live, _ := svc.ListLive(context.Background())
	if len(live) != 0 {
		t.Fatalf("expected no invoice, got %d", len(live))
	}

	exact := cashInvoice(t, svc, cashierCtx(), "Exact Stock", line("5", 8))
	if exact.Items[0].Quantity != 8 || stockOf(t, svc, "5") != 0 {
		t.Fatalf("expected selling the last unit to succeed")
	}
}

func TestCreateInvoiceRejectsDuplicate(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := cashierCtx()

	cashInvoice(t, svc, ctx, "Omar", line("1", 1), line("3", 2))

	_, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceLineRequest{line("3", 2), line("1", 1)},
		Customer:      domain.CustomerInput{Name: "Omar"},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, ErrDuplicateInvoice) {
		t.Fatalf("expected duplicate invoice for reordered identical cart, got %v", err)
	}

	other := cashInvoice(t, svc, ctx, "Omar", line("1", 2), line("3", 2))
	if other.InvoiceNumber != "2" {
		t.Fatalf("different quantities must not be treated as duplicate")
	}
}

func TestCreateInvoiceAllowsRepeatAfterFullReturn(t *testing.T) {
	svc, clock := newTestService(t, Options{})
	ctx := cashierCtx()

	first := cashInvoice(t, svc, ctx, "Alice", line("1", 1))
	if _, err := svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		InvoiceID: first.ID,
		Lines:     []domain.ReturnLineRequest{{Line: 0, Quantity: 1}},
	}); err != nil {
		t.Fatalf("return: %v", err)
	}
	clock.Advance(time.Hour)

	again := cashInvoice(t, svc, ctx, "Alice", line("1", 1))
	if again.ID == first.ID || again.InvoiceNumber != "2" {
		t.Fatalf("expected a new invoice after full return, got %+v", again)
	}
}

func TestCreateInvoiceStillRejectsRepeatOfPartialReturn(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := cashierCtx()

	first := cashInvoice(t, svc, ctx, "Bilal", line("1", 2))
	if _, err := svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		InvoiceID: first.ID,
		Lines:     []domain.ReturnLineRequest{{Line: 0, Quantity: 1}},
	}); err != nil {
		t.Fatalf("return: %v", err)
	}

	_, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceLineRequest{line("1", 2)},
		Customer:      domain.CustomerInput{Name: "Bilal"},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, ErrDuplicateInvoice) {
		t.Fatalf("expected partially returned invoice to still guard duplicates, got %v", err)
	}
}

func TestCreateInvoiceValidation(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := cashierCtx()

	base := func() domain.InvoiceCreateRequest {
		return domain.InvoiceCreateRequest{
			Items:         []domain.InvoiceLineRequest{line("1", 1)},
			Customer:      domain.CustomerInput{Name: "Valid"},
			PaymentMethod: domain.PaymentCash,
		}
	}
	negative := decimal.NewFromInt(-1)

	tests := []struct {
		name   string
		mutate func(*domain.InvoiceCreateRequest)
		want   error
	}{
		{"empty", func(r *domain.InvoiceCreateRequest) { r.Items = nil }, ErrEmptyInvoice},
		{"zero quantity", func(r *domain.InvoiceCreateRequest) { r.Items[0].Quantity = 0 }, ErrInvalidQuantity},
		{"unknown product", func(r *domain.InvoiceCreateRequest) { r.Items[0].ProductID = "404" }, ErrProductNotFound},
		{"missing customer", func(r *domain.InvoiceCreateRequest) { r.Customer.Name = "  " }, ErrMissingCustomerName},
		{"discount over 100", func(r *domain.InvoiceCreateRequest) { r.DiscountPercent = decimal.NewFromInt(101) }, ErrInvalidDiscount},
		{"negative manual total", func(r *domain.InvoiceCreateRequest) { r.ManualTotal = &negative }, ErrInvalidManualTotal},
		{"unknown payment", func(r *domain.InvoiceCreateRequest) { r.PaymentMethod = "card" }, ErrInvalidPaymentMethod},
		{"unknown price mode", func(r *domain.InvoiceCreateRequest) { r.PriceMode = "vip" }, ErrInvalidPriceMode},
		{"installments missing", func(r *domain.InvoiceCreateRequest) { r.PaymentMethod = domain.PaymentInstallment }, ErrInvalidInstallmentTotal},
		{"installment bad date", func(r *domain.InvoiceCreateRequest) {
			r.PaymentMethod = domain.PaymentInstallment
			r.Installments = []domain.InstallmentInput{{Amount: decimal.NewFromInt(150), DueDate: "next week"}}
		}, ErrInvalidDate},
		{"installments short", func(r *domain.InvoiceCreateRequest) {
			r.PaymentMethod = domain.PaymentInstallment
			r.Installments = []domain.InstallmentInput{{Amount: decimal.NewFromInt(100), DueDate: "2026-04-01"}}
		}, ErrInvalidInstallmentTotal},
	}

	for _, tt := range tests {
		req := base()
		tt.mutate(&req)
		if _, err := svc.CreateInvoice(ctx, req); !errors.Is(err, tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
	if got := stockOf(t, svc, "1"); got != 50 {
		t.Fatalf("rejected invoices must not move stock, got %d", got)
	}
}

func TestCreateInvoiceManualTotalAndWholesale(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	override := money("1000")

	inv, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		Items:           []domain.InvoiceLineRequest{line("4", 2), line("2", 1)},
		Customer:        domain.CustomerInput{Name: "Dealer"},
		PriceMode:       domain.PriceModeWholesale,
		DiscountPercent: decimal.NewFromInt(5),
		ManualTotal:     &override,
		PaymentMethod:   domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}
	assertMoney(t, "wholesale unit", inv.Items[0].UnitPrice, "450")
	assertMoney(t, "subtotal", inv.Subtotal, "1120")
	assertMoney(t, "discount", inv.DiscountAmount, "56")
	assertMoney(t, "total", inv.Total, "1000")
	if !inv.ManualTotal {
		t.Fatalf("expected manual total flag")
	}
}

func TestCreateInstallmentInvoiceAndPay(t *testing.T) {
	svc, clock := newTestService(t, Options{})

	inv, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceLineRequest{line("5", 1)},
		Customer:      domain.CustomerInput{Name: "Installment Buyer", Phone: "0555"},
		PaymentMethod: domain.PaymentInstallment,
		Installments: []domain.InstallmentInput{
			{Amount: money("400"), DueDate: "2026-03-15"},
			{Amount: money("400"), DueDate: "2026-04-15"},
		},
	})
	if err != nil {
		t.Fatalf("create installment invoice: %v", err)
	}
	if len(inv.Installments) != 2 || inv.Installments[1].Number != 2 {
		t.Fatalf("expected numbered installments, got %+v", inv.Installments)
	}

	clock.Advance(48 * time.Hour)
	paid, err := svc.PayInstallment(adminCtx(), inv.ID, 1)
	if err != nil {
		t.Fatalf("pay installment: %v", err)
	}
	if !paid.Installments[0].Paid || paid.Installments[0].PaidDate == nil || !paid.Installments[0].PaidDate.Equal(clock.now.UTC()) {
		t.Fatalf("expected installment paid now, got %+v", paid.Installments[0])
	}

	if _, err := svc.PayInstallment(adminCtx(), inv.ID, 1); !errors.Is(err, ErrInstallmentAlreadyPaid) {
		t.Fatalf("expected already paid, got %v", err)
	}
	if _, err := svc.PayInstallment(adminCtx(), inv.ID, 9); !errors.Is(err, ErrInstallmentNotFound) {
		t.Fatalf("expected installment not found, got %v", err)
	}
	if _, err := svc.PayInstallment(adminCtx(), "inv-missing", 1); !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected invoice not found, got %v", err)
	}
}

func TestGetInvoiceFindsArchivedInvoice(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	inv := cashInvoice(t, svc, cashierCtx(), "Archived Lookup", line("1", 1))
	if _, err := svc.CloseDay(adminCtx(), ""); err != nil {
		t.Fatalf("close day: %v", err)
	}

	match, err := svc.GetInvoice(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if match.Locator.Partition != domain.PartitionArchived || match.Locator.ArchiveDate != "2026-03-10" {
		t.Fatalf("expected archived locator, got %+v", match.Locator)
	}
}
