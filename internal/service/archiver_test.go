package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"posledger/backend/internal/domain"
)

func TestCloseDayArchivesAndStartsNewEpoch(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	cashier := cashierCtx()
	other := WithActor(context.Background(), domain.Actor{Username: "sara", Role: "cashier"})

	first := cashInvoice(t, svc, cashier, "One", line("1", 1))
	cashInvoice(t, svc, other, "Two", line("2", 1))
	if _, err := svc.ProcessReturn(adminCtx(), domain.ReturnRequest{
		InvoiceID: first.ID,
		Lines:     []domain.ReturnLineRequest{{Line: 0, Quantity: 1}},
	}); err != nil {
		t.Fatalf("return: %v", err)
	}

	day, err := svc.CloseDay(adminCtx(), "")
	if err != nil {
		t.Fatalf("close day: %v", err)
	}
	if day.Date != "2026-03-10" || day.Epoch != 0 || !day.Cleared || day.ClosedBy != "admin" {
		t.Fatalf("unexpected archive header %+v", day)
	}
	if len(day.Invoices) != 2 || len(day.Returns) != 1 {
		t.Fatalf("expected 2 invoices and 1 return archived, got %d/%d", len(day.Invoices), len(day.Returns))
	}
	assertMoney(t, "sales", day.TotalSales, "400")
	assertMoney(t, "refunds", day.TotalRefunds, "150")

	if len(day.PerCashier) != 3 {
		t.Fatalf("expected admin, cashier and sara breakdowns, got %+v", day.PerCashier)
	}
	for _, b := range day.PerCashier {
		switch b.CashierKey {
		case "cashier":
			if b.InvoiceCount != 1 || b.InvoiceIDs[0] != first.ID {
				t.Fatalf("unexpected cashier breakdown %+v", b)
			}
		case "admin":
			if len(b.ReturnIDs) != 1 || b.InvoiceCount != 0 {
				t.Fatalf("expected the return under admin, got %+v", b)
			}
			assertMoney(t, "admin refunds", b.TotalRefunds, "150")
		case "sara":
			assertMoney(t, "sara sales", b.TotalSales, "250")
		default:
			t.Fatalf("unexpected cashier key %s", b.CashierKey)
		}
	}

	live, _ := svc.ListLive(context.Background())
	if len(live) != 0 {
		t.Fatalf("expected empty live ledger, got %d", len(live))
	}
	report, err := svc.DailyReport(context.Background(), "")
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if report.InvoiceCount != 0 || !report.TotalSales.IsZero() || !report.TotalRefunds.IsZero() {
		t.Fatalf("expected implicit today report empty after close, got %+v", report)
	}

	next := cashInvoice(t, svc, cashier, "Three", line("3", 1))
	if next.InvoiceNumber != "1" || next.Epoch != 1 {
		t.Fatalf("expected numbering restart in epoch 1, got %s", next.Reference())
	}

	if _, err := svc.CloseDay(adminCtx(), "2026-03-10"); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected already closed, got %v", err)
	}
}

func TestCloseDayOnlyMovesThatDate(t *testing.T) {
	svc, clock := newTestService(t, Options{})
	cashInvoice(t, svc, cashierCtx(), "Tuesday", line("1", 1))
	clock.Advance(24 * time.Hour)
	cashInvoice(t, svc, cashierCtx(), "Wednesday", line("1", 1))

	day, err := svc.CloseDay(adminCtx(), "2026-03-10")
	if err != nil {
		t.Fatalf("close day: %v", err)
	}
	if len(day.Invoices) != 1 || day.Invoices[0].CustomerName != "Tuesday" {
		t.Fatalf("expected only Tuesday archived, got %+v", day.Invoices)
	}
	live, _ := svc.ListLive(context.Background())
	if len(live) != 1 || live[0].CustomerName != "Wednesday" {
		t.Fatalf("expected Wednesday to stay live, got %+v", live)
	}

	if _, err := svc.CloseDay(adminCtx(), "10/03/2026"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected invalid date, got %v", err)
	}
}

func TestCloseDayRejectsFutureDate(t *testing.T) {
	svc, clock := newTestService(t, Options{})
	cashInvoice(t, svc, cashierCtx(), "Early", line("1", 1))

	if _, err := svc.CloseDay(adminCtx(), "2026-03-11"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected future date rejected, got %v", err)
	}
	days, _ := svc.ListArchivedDays(context.Background())
	if len(days) != 0 {
		t.Fatalf("expected no archive for a rejected close, got %d", len(days))
	}

	clock.Advance(24 * time.Hour)
	day, err := svc.CloseDay(adminCtx(), "2026-03-11")
	if err != nil {
		t.Fatalf("close once the day has started: %v", err)
	}
	if day.Epoch != 0 || len(day.Invoices) != 0 {
		t.Fatalf("expected first epoch closed without the previous day's invoice, got %+v", day)
	}
}

func TestRestoreDayRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	cashInvoice(t, svc, cashierCtx(), "Alpha", line("1", 2))
	cashInvoice(t, svc, cashierCtx(), "Beta", line("4", 1))

	before, err := svc.DailyReport(context.Background(), "2026-03-10")
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if _, err := svc.CloseDay(adminCtx(), ""); err != nil {
		t.Fatalf("close day: %v", err)
	}
	archived, err := svc.DailyReport(context.Background(), "2026-03-10")
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if !archived.TotalSales.Equal(before.TotalSales) {
		t.Fatalf("explicit date must merge the archive: %s vs %s", archived.TotalSales, before.TotalSales)
	}

	restored, err := svc.RestoreDay(adminCtx(), "2026-03-10")
	if err != nil {
		t.Fatalf("restore day: %v", err)
	}
	if len(restored.Invoices) != 2 {
		t.Fatalf("expected 2 restored invoices, got %d", len(restored.Invoices))
	}

	live, _ := svc.ListLive(context.Background())
	if len(live) != 2 || live[0].CustomerName != "Alpha" {
		t.Fatalf("expected live set restored in order, got %+v", live)
	}
	days, _ := svc.ListArchivedDays(context.Background())
	if len(days) != 0 {
		t.Fatalf("expected archive entry removed, got %d", len(days))
	}
	after, err := svc.DailyReport(context.Background(), "2026-03-10")
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if !after.TotalSales.Equal(before.TotalSales) || after.InvoiceCount != before.InvoiceCount {
		t.Fatalf("expected identical totals after restore, got %+v", after)
	}

	next := cashInvoice(t, svc, cashierCtx(), "Gamma", line("2", 1))
	if next.Epoch != 1 || next.InvoiceNumber != "1" {
		t.Fatalf("restore must leave the counter alone, got %s", next.Reference())
	}

	if _, err := svc.RestoreDay(adminCtx(), "2026-01-01"); !errors.Is(err, ErrDayNotFound) {
		t.Fatalf("expected day not found, got %v", err)
	}
}

func TestListArchivedDaysNewestFirst(t *testing.T) {
	svc, clock := newTestService(t, Options{})
	for i := 0; i < 3; i++ {
		cashInvoice(t, svc, cashierCtx(), "Daily", line("1", i+1))
		if _, err := svc.CloseDay(adminCtx(), ""); err != nil {
			t.Fatalf("close day %d: %v", i, err)
		}
		clock.Advance(24 * time.Hour)
	}

	days, err := svc.ListArchivedDays(context.Background())
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(days) != 3 || days[0].Date != "2026-03-12" || days[2].Date != "2026-03-10" {
		t.Fatalf("expected newest first, got %v", []string{days[0].Date, days[len(days)-1].Date})
	}
}
