package service

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

// CreateInvoice validates the cart, allocates the next number, takes stock
// and links the customer in one commit.
func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	req.Customer = normalizeCustomerInput(req.Customer)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.PriceMode = strings.ToLower(strings.TrimSpace(req.PriceMode))
	if req.PriceMode == "" {
		req.PriceMode = domain.PriceModeSale
	}

	if len(req.Items) == 0 {
		return domain.Invoice{}, ErrEmptyInvoice
	}
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return domain.Invoice{}, ErrInvalidQuantity
		}
	}
	if req.Customer.Name == "" {
		return domain.Invoice{}, ErrMissingCustomerName
	}
	if req.DiscountPercent.IsNegative() || req.DiscountPercent.GreaterThan(hundred) {
		return domain.Invoice{}, ErrInvalidDiscount
	}
	if req.ManualTotal != nil && req.ManualTotal.IsNegative() {
		return domain.Invoice{}, ErrInvalidManualTotal
	}
	if req.PaymentMethod != domain.PaymentCash && req.PaymentMethod != domain.PaymentInstallment {
		return domain.Invoice{}, ErrInvalidPaymentMethod
	}
	if req.PriceMode != domain.PriceModeSale && req.PriceMode != domain.PriceModeWholesale {
		return domain.Invoice{}, ErrInvalidPriceMode
	}
	if req.PaymentMethod == domain.PaymentInstallment {
		if len(req.Installments) == 0 {
			return domain.Invoice{}, ErrInvalidInstallmentTotal
		}
		for _, inst := range req.Installments {
			if !inst.Amount.IsPositive() {
				return domain.Invoice{}, ErrInvalidInstallmentTotal
			}
			if _, err := parseDate(inst.DueDate); err != nil {
				return domain.Invoice{}, err
			}
		}
	}

	actor := actorOrSystem(ctx)
	reads := []store.Collection{store.Products, store.Invoices, store.Customers, store.InvoiceCounter}

	var created domain.Invoice
	_, err := s.mutate(ctx, "create_invoice", reads, func(snap *store.Snapshot) ([]store.Collection, error) {
		requested := make(map[string]int, len(req.Items))
		items := make([]domain.InvoiceItem, 0, len(req.Items))
		subtotal := decimal.Zero
		for _, line := range req.Items {
			idx := productIndex(snap.Products, line.ProductID)
			if idx < 0 {
				return nil, ErrProductNotFound
			}
			product := snap.Products[idx]
			requested[product.ID] += line.Quantity

			unit := product.PriceFor(req.PriceMode)
			lineTotal := unit.Mul(decimal.NewFromInt(int64(line.Quantity)))
			subtotal = subtotal.Add(lineTotal)
			items = append(items, domain.InvoiceItem{
				Product:   product.Snapshot(),
				Quantity:  line.Quantity,
				UnitPrice: unit,
				LineTotal: lineTotal,
			})
		}
		for productID, qty := range requested {
			if qty > snap.Products[productIndex(snap.Products, productID)].StockQuantity {
				return nil, ErrInsufficientStock
			}
		}

		discount := round2(subtotal.Mul(req.DiscountPercent).Div(hundred))
		total := subtotal.Sub(discount)
		if req.ManualTotal != nil {
			total = round2(*req.ManualTotal)
		}

		var installments []domain.Installment
		if req.PaymentMethod == domain.PaymentInstallment {
			sum := decimal.Zero
			for i, inst := range req.Installments {
				due, _ := parseDate(inst.DueDate)
				amount := round2(inst.Amount)
				sum = sum.Add(amount)
				installments = append(installments, domain.Installment{Number: i + 1, Amount: amount, DueDate: due})
			}
			if !sum.Equal(total) {
				return nil, ErrInvalidInstallmentTotal
			}
		}

		if hasDuplicateInvoice(snap.Invoices, req.Customer.Name, total, items) {
			return nil, ErrDuplicateInvoice
		}

		now := s.now().UTC()
		snap.Counter.Value++
		created = domain.Invoice{
			ID:              xid.New("inv"),
			InvoiceNumber:   strconv.FormatInt(snap.Counter.Value, 10),
			Epoch:           snap.Counter.Epoch,
			CreatedAt:       now,
			CashierID:       actor.Username,
			CashierName:     actor.DisplayName,
			CustomerName:    req.Customer.Name,
			CustomerPhone:   req.Customer.Phone,
			CustomerEmail:   req.Customer.Email,
			Items:           items,
			PriceMode:       req.PriceMode,
			Subtotal:        subtotal,
			DiscountPercent: req.DiscountPercent,
			DiscountAmount:  discount,
			TaxAmount:       decimal.Zero,
			Total:           total,
			ManualTotal:     req.ManualTotal != nil,
			Status:          domain.InvoiceStatusCompleted,
			PaymentMethod:   req.PaymentMethod,
			Installments:    installments,
			RefundedAmount:  decimal.Zero,
		}

		for productID, qty := range requested {
			idx := productIndex(snap.Products, productID)
			snap.Products[idx].StockQuantity -= qty
			snap.Products[idx].UpdatedAt = now
		}
		snap.Customers = upsertCustomer(snap.Customers, req.Customer, created.ID, now)
		snap.Invoices = append(snap.Invoices, created)
		return []store.Collection{store.Products, store.Invoices, store.Customers, store.InvoiceCounter}, nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.metrics.IncInvoice(created.PaymentMethod)
	s.logAudit(ctx, "invoice_create", "invoice", created.ID, map[string]any{
		"reference": created.Reference(),
		"total":     created.Total.StringFixed(2),
		"payment":   created.PaymentMethod,
	})
	return created, nil
}

// ListLive returns the invoices not yet archived, oldest first.
func (s *Service) ListLive(ctx context.Context) ([]domain.Invoice, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Invoices, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.InvoiceMatch, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return domain.InvoiceMatch{}, err
	}
	loc, ok := locateInvoice(snap, id)
	if !ok {
		return domain.InvoiceMatch{}, ErrInvoiceNotFound
	}
	return domain.InvoiceMatch{Invoice: *invoiceAt(snap, loc), Locator: loc}, nil
}

// PayInstallment marks installment number of the invoice as paid, in
// whichever partition the invoice lives.
func (s *Service) PayInstallment(ctx context.Context, invoiceID string, number int) (domain.Invoice, error) {
	var paid domain.Invoice
	reads := []store.Collection{store.Invoices, store.ArchivedDays}
	_, err := s.mutate(ctx, "pay_installment", reads, func(snap *store.Snapshot) ([]store.Collection, error) {
		loc, ok := locateInvoice(snap, invoiceID)
		if !ok {
			return nil, ErrInvoiceNotFound
		}
		inv := invoiceAt(snap, loc)
		idx := slices.IndexFunc(inv.Installments, func(i domain.Installment) bool { return i.Number == number })
		if idx < 0 {
			return nil, ErrInstallmentNotFound
		}
		if inv.Installments[idx].Paid {
			return nil, ErrInstallmentAlreadyPaid
		}
		now := s.now().UTC()
		inv.Installments[idx].Paid = true
		inv.Installments[idx].PaidDate = &now
		paid = store.CloneInvoice(*inv)
		return []store.Collection{partitionCollection(loc)}, nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "installment_pay", "invoice", paid.ID, map[string]any{"installment": number})
	return paid, nil
}

func partitionCollection(loc domain.InvoiceLocator) store.Collection {
	if loc.Partition == domain.PartitionArchived {
		return store.ArchivedDays
	}
	return store.Invoices
}

// locateInvoice searches the live ledger, then each archived day in order.
func locateInvoice(snap *store.Snapshot, id string) (domain.InvoiceLocator, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.InvoiceLocator{}, false
	}
	if idx := slices.IndexFunc(snap.Invoices, func(inv domain.Invoice) bool { return inv.ID == id }); idx >= 0 {
		return domain.InvoiceLocator{Partition: domain.PartitionLive, Index: idx}, true
	}
	for _, day := range snap.ArchivedDays {
		if idx := slices.IndexFunc(day.Invoices, func(inv domain.Invoice) bool { return inv.ID == id }); idx >= 0 {
			return domain.InvoiceLocator{Partition: domain.PartitionArchived, ArchiveDate: day.Date, Index: idx}, true
		}
	}
	return domain.InvoiceLocator{}, false
}

// invoiceAt resolves a locator to a pointer into snap, or nil when it no
// longer points anywhere.
func invoiceAt(snap *store.Snapshot, loc domain.InvoiceLocator) *domain.Invoice {
	switch loc.Partition {
	case domain.PartitionLive:
		if loc.Index >= 0 && loc.Index < len(snap.Invoices) {
			return &snap.Invoices[loc.Index]
		}
	case domain.PartitionArchived:
		for d := range snap.ArchivedDays {
			day := &snap.ArchivedDays[d]
			if day.Date != loc.ArchiveDate {
				continue
			}
			if loc.Index >= 0 && loc.Index < len(day.Invoices) {
				return &day.Invoices[loc.Index]
			}
		}
	}
	return nil
}

type canonicalLine struct {
	productID string
	quantity  int
	unitPrice decimal.Decimal
}

func canonicalItems(items []domain.InvoiceItem) []canonicalLine {
	lines := make([]canonicalLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, canonicalLine{productID: item.Product.ID, quantity: item.Quantity, unitPrice: item.UnitPrice})
	}
	slices.SortFunc(lines, func(a, b canonicalLine) int {
		if c := strings.Compare(a.productID, b.productID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.quantity, b.quantity); c != 0 {
			return c
		}
		return a.unitPrice.Cmp(b.unitPrice)
	})
	return lines
}

// hasDuplicateInvoice matches a live invoice with the same customer, total
// and cart. Fully returned invoices no longer count; partially returned ones
// still stand as a sale and do.
func hasDuplicateInvoice(live []domain.Invoice, customerName string, total decimal.Decimal, items []domain.InvoiceItem) bool {
	want := canonicalItems(items)
	for _, inv := range live {
		if inv.Status == domain.InvoiceStatusReturned {
			continue
		}
		if inv.CustomerName != customerName || !inv.Total.Equal(total) || len(inv.Items) != len(items) {
			continue
		}
		got := canonicalItems(inv.Items)
		if slices.EqualFunc(want, got, func(a, b canonicalLine) bool {
			return a.productID == b.productID && a.quantity == b.quantity && a.unitPrice.Equal(b.unitPrice)
		}) {
			return true
		}
	}
	return false
}
