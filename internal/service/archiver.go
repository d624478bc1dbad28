package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

// CloseDay moves the live invoices and returns of date (today when empty)
// into a new archived day and starts a new numbering epoch. Days after today
// cannot be closed.
func (s *Service) CloseDay(ctx context.Context, date string) (domain.ArchivedDay, error) {
	if strings.TrimSpace(date) == "" {
		date = s.today()
	}
	date, err := parseDate(date)
	if err != nil {
		return domain.ArchivedDay{}, err
	}
	if date > s.today() {
		return domain.ArchivedDay{}, fmt.Errorf("close %s: day has not started: %w", date, ErrInvalidDate)
	}

	actor := actorOrSystem(ctx)
	reads := []store.Collection{store.Invoices, store.Returns, store.ArchivedDays, store.InvoiceCounter}

	var archived domain.ArchivedDay
	_, err = s.mutate(ctx, "close_day", reads, func(snap *store.Snapshot) ([]store.Collection, error) {
		if slices.ContainsFunc(snap.ArchivedDays, func(d domain.ArchivedDay) bool { return d.Date == date }) {
			return nil, ErrAlreadyClosed
		}

		var (
			moved       []domain.Invoice
			keptInvoice = make([]domain.Invoice, 0, len(snap.Invoices))
			movedRet    []domain.ReturnRecord
			keptReturns = make([]domain.ReturnRecord, 0, len(snap.Returns))
		)
		for _, inv := range snap.Invoices {
			if s.dateOf(inv.CreatedAt) == date {
				moved = append(moved, inv)
			} else {
				keptInvoice = append(keptInvoice, inv)
			}
		}
		for _, ret := range snap.Returns {
			if s.dateOf(ret.CreatedAt) == date {
				movedRet = append(movedRet, ret)
			} else {
				keptReturns = append(keptReturns, ret)
			}
		}

		archived = domain.ArchivedDay{
			ID:           xid.New("day"),
			Date:         date,
			Epoch:        snap.Counter.Epoch,
			ClosedAt:     s.now().UTC(),
			ClosedBy:     actor.Username,
			PerCashier:   breakdownByCashier(moved, movedRet),
			Invoices:     nonNilInvoices(moved),
			Returns:      nonNilReturns(movedRet),
			TotalSales:   sumSales(moved),
			TotalRefunds: sumRefunds(movedRet),
			Cleared:      true,
		}

		snap.Invoices = keptInvoice
		snap.Returns = keptReturns
		snap.ArchivedDays = append(snap.ArchivedDays, archived)
		snap.Counter = domain.InvoiceCounter{Epoch: snap.Counter.Epoch + 1, Value: 0}
		return []store.Collection{store.Invoices, store.Returns, store.ArchivedDays, store.InvoiceCounter}, nil
	})
	if err != nil {
		return domain.ArchivedDay{}, err
	}

	s.metrics.IncDayClosed()
	s.logAudit(ctx, "day_close", "archived_day", archived.ID, map[string]any{
		"date":     archived.Date,
		"invoices": len(archived.Invoices),
		"returns":  len(archived.Returns),
		"sales":    archived.TotalSales.StringFixed(2),
	})
	return archived, nil
}

// RestoreDay moves an archived day's records back into the live ledger and
// drops the archive. The invoice counter is left alone.
func (s *Service) RestoreDay(ctx context.Context, date string) (domain.ArchivedDay, error) {
	date, err := parseDate(date)
	if err != nil {
		return domain.ArchivedDay{}, err
	}

	reads := []store.Collection{store.Invoices, store.Returns, store.ArchivedDays}

	var restored domain.ArchivedDay
	_, err = s.mutate(ctx, "restore_day", reads, func(snap *store.Snapshot) ([]store.Collection, error) {
		idx := slices.IndexFunc(snap.ArchivedDays, func(d domain.ArchivedDay) bool { return d.Date == date })
		if idx < 0 {
			return nil, ErrDayNotFound
		}
		restored = snap.ArchivedDays[idx]

		snap.Invoices = append(snap.Invoices, restored.Invoices...)
		slices.SortStableFunc(snap.Invoices, func(a, b domain.Invoice) int { return a.CreatedAt.Compare(b.CreatedAt) })
		snap.Returns = append(snap.Returns, restored.Returns...)
		slices.SortStableFunc(snap.Returns, func(a, b domain.ReturnRecord) int { return a.CreatedAt.Compare(b.CreatedAt) })
		snap.ArchivedDays = slices.Delete(snap.ArchivedDays, idx, idx+1)
		return []store.Collection{store.Invoices, store.Returns, store.ArchivedDays}, nil
	})
	if err != nil {
		return domain.ArchivedDay{}, err
	}

	s.metrics.IncDayRestored()
	s.logAudit(ctx, "day_restore", "archived_day", restored.ID, map[string]any{
		"date":     restored.Date,
		"invoices": len(restored.Invoices),
	})
	return restored, nil
}

// ListArchivedDays returns archived days, newest first.
func (s *Service) ListArchivedDays(ctx context.Context) ([]domain.ArchivedDay, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	days := snap.ArchivedDays
	slices.SortStableFunc(days, func(a, b domain.ArchivedDay) int { return cmp.Compare(b.Date, a.Date) })
	return days, nil
}

func breakdownByCashier(invoices []domain.Invoice, returns []domain.ReturnRecord) []domain.CashierBreakdown {
	byKey := make(map[string]*domain.CashierBreakdown)
	entry := func(key, id, name string) *domain.CashierBreakdown {
		b, ok := byKey[key]
		if !ok {
			b = &domain.CashierBreakdown{
				CashierKey:   key,
				CashierID:    id,
				CashierName:  name,
				InvoiceIDs:   []string{},
				ReturnIDs:    []string{},
				TotalSales:   decimal.Zero,
				TotalRefunds: decimal.Zero,
			}
			byKey[key] = b
		}
		return b
	}

	for _, inv := range invoices {
		b := entry(cashierKey(inv.CashierID, inv.CashierName), inv.CashierID, inv.CashierName)
		b.InvoiceIDs = append(b.InvoiceIDs, inv.ID)
		b.InvoiceCount++
		b.TotalSales = b.TotalSales.Add(inv.Total)
	}
	for _, ret := range returns {
		b := entry(cashierKey(ret.ProcessedBy, ret.ProcessedByName), ret.ProcessedBy, ret.ProcessedByName)
		b.ReturnIDs = append(b.ReturnIDs, ret.ID)
		b.TotalRefunds = b.TotalRefunds.Add(ret.RefundAmount)
	}

	out := make([]domain.CashierBreakdown, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b domain.CashierBreakdown) int { return strings.Compare(a.CashierKey, b.CashierKey) })
	return out
}

func sumSales(invoices []domain.Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(inv.Total)
	}
	return total
}

func sumRefunds(returns []domain.ReturnRecord) decimal.Decimal {
	total := decimal.Zero
	for _, ret := range returns {
		total = total.Add(ret.RefundAmount)
	}
	return total
}

func nonNilInvoices(in []domain.Invoice) []domain.Invoice {
	if in == nil {
		return []domain.Invoice{}
	}
	return in
}

func nonNilReturns(in []domain.ReturnRecord) []domain.ReturnRecord {
	if in == nil {
		return []domain.ReturnRecord{}
	}
	return in
}
