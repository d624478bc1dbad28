package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

// FindInvoice looks up invoices for a return. An exact invoice number or
// receipt reference wins outright; otherwise the query is matched against
// customer names and phones, live ledger first, then archived days.
func (s *Service) FindInvoice(ctx context.Context, query string) ([]domain.InvoiceMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoInvoiceSelected
	}
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	exact := collectInvoices(snap, func(inv domain.Invoice) bool {
		return inv.InvoiceNumber == query || inv.Reference() == query
	})
	if len(exact) > 0 {
		return exact, nil
	}

	needle := strings.ToLower(query)
	return collectInvoices(snap, func(inv domain.Invoice) bool {
		return strings.Contains(strings.ToLower(inv.CustomerName), needle) ||
			(inv.CustomerPhone != "" && strings.Contains(strings.ToLower(inv.CustomerPhone), needle))
	}), nil
}

func collectInvoices(snap *store.Snapshot, match func(domain.Invoice) bool) []domain.InvoiceMatch {
	out := make([]domain.InvoiceMatch, 0)
	for i, inv := range snap.Invoices {
		if match(inv) {
			out = append(out, domain.InvoiceMatch{
				Invoice: inv,
				Locator: domain.InvoiceLocator{Partition: domain.PartitionLive, Index: i},
			})
		}
	}
	for _, day := range snap.ArchivedDays {
		for i, inv := range day.Invoices {
			if match(inv) {
				out = append(out, domain.InvoiceMatch{
					Invoice: inv,
					Locator: domain.InvoiceLocator{Partition: domain.PartitionArchived, ArchiveDate: day.Date, Index: i},
				})
			}
		}
	}
	return out
}

type requestedLine struct {
	line     int
	quantity int
	reason   string
}

// ProcessReturn accepts returned goods against a live or archived invoice.
// Requested quantities are clamped to what each line still allows.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnRecord, error) {
	invoiceID := strings.TrimSpace(req.InvoiceID)
	if invoiceID == "" {
		return domain.ReturnRecord{}, ErrNoInvoiceSelected
	}

	requested := make([]requestedLine, 0, len(req.Lines))
	positions := make(map[int]int, len(req.Lines))
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			continue
		}
		if pos, ok := positions[line.Line]; ok {
			requested[pos].quantity += line.Quantity
			continue
		}
		positions[line.Line] = len(requested)
		requested = append(requested, requestedLine{line: line.Line, quantity: line.Quantity, reason: strings.TrimSpace(line.Reason)})
	}
	if len(requested) == 0 {
		return domain.ReturnRecord{}, ErrNoLinesSelected
	}

	actor := actorOrSystem(ctx)
	reads := []store.Collection{store.Products, store.Invoices, store.ArchivedDays, store.Returns}

	var (
		record    domain.ReturnRecord
		partition string
	)
	_, err := s.mutate(ctx, "process_return", reads, func(snap *store.Snapshot) ([]store.Collection, error) {
		loc, ok := resolveLocator(snap, invoiceID, req.Locator)
		if !ok {
			return nil, ErrInvoiceNotFound
		}
		inv := invoiceAt(snap, loc)
		for _, r := range requested {
			if r.line < 0 || r.line >= len(inv.Items) {
				return nil, ErrInvalidReturnLine
			}
		}

		lines := make([]domain.ReturnLine, 0, len(requested))
		for _, r := range requested {
			qty := min(r.quantity, inv.Items[r.line].RemainingQuantity())
			if qty == 0 {
				continue
			}
			lines = append(lines, domain.ReturnLine{
				Line:     r.line,
				Product:  inv.Items[r.line].Product,
				Quantity: qty,
				Reason:   r.reason,
			})
		}
		if len(lines) == 0 {
			return nil, ErrInvoiceSettled
		}

		for _, l := range lines {
			inv.Items[l.Line].ReturnedQuantity += l.Quantity
		}
		settles := inv.FullyReturned()
		refund := s.priceReturn(snap.Products, inv, lines, settles)

		changed := []store.Collection{store.Returns, partitionCollection(loc)}
		restocked := false
		now := s.now().UTC()
		for _, l := range lines {
			idx := productIndex(snap.Products, l.Product.ID)
			if idx < 0 {
				continue
			}
			snap.Products[idx].StockQuantity += l.Quantity
			snap.Products[idx].UpdatedAt = now
			restocked = true
		}
		if restocked {
			changed = append(changed, store.Products)
		}

		record = domain.ReturnRecord{
			ID:              xid.New("ret"),
			InvoiceID:       inv.ID,
			InvoiceNumber:   inv.InvoiceNumber,
			InvoiceEpoch:    inv.Epoch,
			CreatedAt:       now,
			ProcessedBy:     actor.Username,
			ProcessedByName: actor.DisplayName,
			Items:           lines,
			RefundAmount:    refund,
			RefundPolicy:    s.refundPolicy,
			Reason:          strings.TrimSpace(req.Reason),
			SettlesInvoice:  settles,
		}

		inv.RefundedAmount = inv.RefundedAmount.Add(refund)
		inv.ReturnIDs = append(inv.ReturnIDs, record.ID)
		inv.Status = domain.InvoiceStatusPartiallyReturned
		if settles {
			inv.Status = domain.InvoiceStatusReturned
		}
		snap.Returns = append(snap.Returns, record)
		partition = loc.Partition
		return changed, nil
	})
	if err != nil {
		return domain.ReturnRecord{}, err
	}

	s.metrics.IncReturn(partition, moneyFloat(record.RefundAmount))
	s.logAudit(ctx, "return_process", "return", record.ID, map[string]any{
		"invoice_id": record.InvoiceID,
		"partition":  partition,
		"refund":     record.RefundAmount.StringFixed(2),
		"settles":    record.SettlesInvoice,
	})
	return record, nil
}

// resolveLocator honours a locator that still points at invoiceID and
// otherwise searches for the invoice again.
func resolveLocator(snap *store.Snapshot, invoiceID string, hint *domain.InvoiceLocator) (domain.InvoiceLocator, bool) {
	if hint != nil {
		if inv := invoiceAt(snap, *hint); inv != nil && inv.ID == invoiceID {
			return *hint, true
		}
	}
	return locateInvoice(snap, invoiceID)
}

// priceReturn fills UnitRefund and Amount on lines and returns the refund.
func (s *Service) priceReturn(products []domain.Product, inv *domain.Invoice, lines []domain.ReturnLine, settles bool) decimal.Decimal {
	refund := decimal.Zero

	if s.refundPolicy == domain.RefundPolicyCurrentPrice {
		for i := range lines {
			unit := lines[i].Product.SalePrice
			if idx := productIndex(products, lines[i].Product.ID); idx >= 0 {
				unit = products[idx].SalePrice
			}
			lines[i].UnitRefund = unit
			lines[i].Amount = round2(unit.Mul(decimal.NewFromInt(int64(lines[i].Quantity))))
			refund = refund.Add(lines[i].Amount)
		}
		return refund
	}

	for i := range lines {
		unit := decimal.Zero
		if inv.Subtotal.IsPositive() {
			unit = round2(inv.Items[lines[i].Line].UnitPrice.Mul(inv.Total).Div(inv.Subtotal))
		}
		lines[i].UnitRefund = unit
		lines[i].Amount = round2(unit.Mul(decimal.NewFromInt(int64(lines[i].Quantity))))
		refund = refund.Add(lines[i].Amount)
	}

	// The settling return absorbs rounding so refunds add up to the total.
	remaining := inv.Total.Sub(inv.RefundedAmount)
	if settles || refund.GreaterThan(remaining) {
		last := len(lines) - 1
		lines[last].Amount = lines[last].Amount.Add(remaining.Sub(refund))
		refund = remaining
	}
	return refund
}
