package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

const DefaultInstallmentWindow = 7

// DailyReport summarizes one day. Without a date it covers today's live
// activity only, so a closed day reads as empty; an explicit date also
// folds in that day's archive.
func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	implicit := strings.TrimSpace(date) == ""
	if implicit {
		date = s.today()
	}
	date, err := parseDate(date)
	if err != nil {
		return domain.DailyReport{}, err
	}

	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return domain.DailyReport{}, err
	}

	invoices := make([]domain.Invoice, 0)
	returns := make([]domain.ReturnRecord, 0)
	if !implicit {
		for _, day := range snap.ArchivedDays {
			if day.Date != date {
				continue
			}
			invoices = append(invoices, day.Invoices...)
			returns = append(returns, day.Returns...)
		}
	}
	for _, inv := range snap.Invoices {
		if s.dateOf(inv.CreatedAt) == date {
			invoices = append(invoices, inv)
		}
	}
	for _, ret := range snap.Returns {
		if s.dateOf(ret.CreatedAt) == date {
			returns = append(returns, ret)
		}
	}

	sales := sumSales(invoices)
	refunds := sumRefunds(returns)
	return domain.DailyReport{
		Date:         date,
		Invoices:     invoices,
		Returns:      returns,
		InvoiceCount: len(invoices),
		ReturnCount:  len(returns),
		TotalSales:   sales,
		TotalRefunds: refunds,
		NetSales:     sales.Sub(refunds),
		ByCashier:    summarizeCashiers(invoices, returns),
	}, nil
}

func summarizeCashiers(invoices []domain.Invoice, returns []domain.ReturnRecord) []domain.CashierSummary {
	breakdown := breakdownByCashier(invoices, returns)
	out := make([]domain.CashierSummary, 0, len(breakdown))
	for _, b := range breakdown {
		name := b.CashierName
		if name == "" {
			name = b.CashierKey
		}
		out = append(out, domain.CashierSummary{
			CashierKey:   b.CashierKey,
			CashierName:  name,
			Invoices:     b.InvoiceCount,
			Returns:      len(b.ReturnIDs),
			TotalSales:   b.TotalSales,
			TotalRefunds: b.TotalRefunds,
		})
	}
	return out
}

// MonthlyReport buckets a month's sales and refunds per day. Each archived
// day is folded exactly once before the live records.
func (s *Service) MonthlyReport(ctx context.Context, year int, month int) (domain.MonthlyReport, error) {
	now := s.clock()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 || year < 1 {
		return domain.MonthlyReport{}, ErrInvalidDate
	}

	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return domain.MonthlyReport{}, err
	}

	key := monthlyCacheKey(year, month, s.loc, snap.LedgerID, snap.Versions)
	if cached, ok, err := s.reports.Get(ctx, key); err != nil {
		s.log.Error(ctx, "read monthly report cache", err)
	} else if ok {
		return *cached, nil
	}

	prefix := fmt.Sprintf("%04d-%02d-", year, month)
	buckets := make(map[string]*domain.DaySummary)
	bucket := func(date string) *domain.DaySummary {
		b, ok := buckets[date]
		if !ok {
			b = &domain.DaySummary{Date: date, TotalSales: decimal.Zero, TotalRefunds: decimal.Zero}
			buckets[date] = b
		}
		return b
	}
	addInvoice := func(inv domain.Invoice) {
		date := s.dateOf(inv.CreatedAt)
		if !strings.HasPrefix(date, prefix) {
			return
		}
		b := bucket(date)
		b.InvoiceCount++
		b.TotalSales = b.TotalSales.Add(inv.Total)
	}
	addReturn := func(ret domain.ReturnRecord) {
		date := s.dateOf(ret.CreatedAt)
		if !strings.HasPrefix(date, prefix) {
			return
		}
		b := bucket(date)
		b.ReturnCount++
		b.TotalRefunds = b.TotalRefunds.Add(ret.RefundAmount)
	}

	for _, day := range snap.ArchivedDays {
		for _, inv := range day.Invoices {
			addInvoice(inv)
		}
		for _, ret := range day.Returns {
			addReturn(ret)
		}
	}
	for _, inv := range snap.Invoices {
		addInvoice(inv)
	}
	for _, ret := range snap.Returns {
		addReturn(ret)
	}

	report := domain.MonthlyReport{
		Year:           year,
		Month:          month,
		PerDay:         make([]domain.DaySummary, 0, len(buckets)),
		TotalSales:     decimal.Zero,
		TotalRefunds:   decimal.Zero,
		AverageInvoice: decimal.Zero,
	}
	for _, b := range buckets {
		report.PerDay = append(report.PerDay, *b)
		report.TotalSales = report.TotalSales.Add(b.TotalSales)
		report.TotalRefunds = report.TotalRefunds.Add(b.TotalRefunds)
		report.InvoiceCount += b.InvoiceCount
	}
	slices.SortFunc(report.PerDay, func(a, b domain.DaySummary) int { return cmp.Compare(a.Date, b.Date) })
	report.NetSales = report.TotalSales.Sub(report.TotalRefunds)
	if report.InvoiceCount > 0 {
		report.AverageInvoice = round2(report.TotalSales.Div(decimal.NewFromInt(int64(report.InvoiceCount))))
	}

	if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
		s.log.Error(ctx, "write monthly report cache", err)
	}
	return report, nil
}

func monthlyCacheKey(year int, month int, loc *time.Location, ledgerID string, versions store.Versions) string {
	return fmt.Sprintf("monthly:%s:%04d-%02d:%s:i%d:r%d:a%d",
		ledgerID, year, month, loc.String(),
		versions[store.Invoices], versions[store.Returns], versions[store.ArchivedDays])
}

// UpcomingInstallments lists unpaid installments due between today and
// today+windowDays, over live and archived invoices, soonest first.
func (s *Service) UpcomingInstallments(ctx context.Context, windowDays int) ([]domain.UpcomingInstallment, error) {
	if windowDays <= 0 {
		windowDays = DefaultInstallmentWindow
	}
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	today, _ := time.Parse(domain.DateLayout, s.today())
	out := make([]domain.UpcomingInstallment, 0)
	visit := func(inv domain.Invoice) {
		for _, inst := range inv.Installments {
			if inst.Paid {
				continue
			}
			due, err := time.Parse(domain.DateLayout, inst.DueDate)
			if err != nil {
				continue
			}
			days := int(due.Sub(today).Hours() / 24)
			if days < 0 || days > windowDays {
				continue
			}
			out = append(out, domain.UpcomingInstallment{
				InvoiceID:         inv.ID,
				InvoiceNumber:     inv.InvoiceNumber,
				Epoch:             inv.Epoch,
				CustomerName:      inv.CustomerName,
				CustomerPhone:     inv.CustomerPhone,
				InstallmentNumber: inst.Number,
				Amount:            inst.Amount,
				DueDate:           inst.DueDate,
				DaysRemaining:     days,
			})
		}
	}

	for _, inv := range snap.Invoices {
		visit(inv)
	}
	for _, day := range snap.ArchivedDays {
		for _, inv := range day.Invoices {
			visit(inv)
		}
	}

	slices.SortStableFunc(out, func(a, b domain.UpcomingInstallment) int {
		if c := cmp.Compare(a.DaysRemaining, b.DaysRemaining); c != 0 {
			return c
		}
		return cmp.Compare(a.DueDate, b.DueDate)
	})
	return out, nil
}
