package store

import (
	"slices"

	"posledger/backend/internal/domain"
)

// CloneSnapshot deep-copies s so the result shares no slices with it.
func CloneSnapshot(s *Snapshot) *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		Products:     slices.Clone(s.Products),
		Customers:    CloneCustomers(s.Customers),
		Invoices:     CloneInvoices(s.Invoices),
		Returns:      CloneReturns(s.Returns),
		ArchivedDays: CloneArchivedDays(s.ArchivedDays),
		Counter:      s.Counter,
		Versions:     s.Versions.Clone(),
		LedgerID:     s.LedgerID,
	}
}

func CloneInvoice(inv domain.Invoice) domain.Invoice {
	inv.Items = slices.Clone(inv.Items)
	inv.ReturnIDs = slices.Clone(inv.ReturnIDs)
	if inv.Installments != nil {
		installments := make([]domain.Installment, len(inv.Installments))
		for i, inst := range inv.Installments {
			if inst.PaidDate != nil {
				paid := *inst.PaidDate
				inst.PaidDate = &paid
			}
			installments[i] = inst
		}
		inv.Installments = installments
	}
	return inv
}

func CloneInvoices(src []domain.Invoice) []domain.Invoice {
	if src == nil {
		return nil
	}
	out := make([]domain.Invoice, len(src))
	for i, inv := range src {
		out[i] = CloneInvoice(inv)
	}
	return out
}

func CloneCustomers(src []domain.Customer) []domain.Customer {
	if src == nil {
		return nil
	}
	out := make([]domain.Customer, len(src))
	for i, c := range src {
		c.InvoiceIDs = slices.Clone(c.InvoiceIDs)
		out[i] = c
	}
	return out
}

func CloneReturns(src []domain.ReturnRecord) []domain.ReturnRecord {
	if src == nil {
		return nil
	}
	out := make([]domain.ReturnRecord, len(src))
	for i, r := range src {
		r.Items = slices.Clone(r.Items)
		out[i] = r
	}
	return out
}

func CloneArchivedDays(src []domain.ArchivedDay) []domain.ArchivedDay {
	if src == nil {
		return nil
	}
	out := make([]domain.ArchivedDay, len(src))
	for i, day := range src {
		day.Invoices = CloneInvoices(day.Invoices)
		day.Returns = CloneReturns(day.Returns)
		if day.PerCashier != nil {
			per := make([]domain.CashierBreakdown, len(day.PerCashier))
			for j, b := range day.PerCashier {
				b.InvoiceIDs = slices.Clone(b.InvoiceIDs)
				b.ReturnIDs = slices.Clone(b.ReturnIDs)
				per[j] = b
			}
			day.PerCashier = per
		}
		out[i] = day
	}
	return out
}
