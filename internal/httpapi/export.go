package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"posledger/backend/internal/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func writeAttachment(w http.ResponseWriter, contentType string, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func monthlyFilename(report domain.MonthlyReport) string {
	return fmt.Sprintf("monthly-report-%04d-%02d.xlsx", report.Year, report.Month)
}

func dailyReportCSV(report domain.DailyReport) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"section", "key", "value"})
	_ = w.Write([]string{"summary", "date", report.Date})
	_ = w.Write([]string{"summary", "invoice_count", strconv.Itoa(report.InvoiceCount)})
	_ = w.Write([]string{"summary", "return_count", strconv.Itoa(report.ReturnCount)})
	_ = w.Write([]string{"summary", "total_sales", report.TotalSales.StringFixed(2)})
	_ = w.Write([]string{"summary", "total_refunds", report.TotalRefunds.StringFixed(2)})
	_ = w.Write([]string{"summary", "net_sales", report.NetSales.StringFixed(2)})
	for _, c := range report.ByCashier {
		_ = w.Write([]string{"cashier", c.CashierKey + "_invoices", strconv.Itoa(c.Invoices)})
		_ = w.Write([]string{"cashier", c.CashierKey + "_returns", strconv.Itoa(c.Returns)})
		_ = w.Write([]string{"cashier", c.CashierKey + "_total_sales", c.TotalSales.StringFixed(2)})
		_ = w.Write([]string{"cashier", c.CashierKey + "_total_refunds", c.TotalRefunds.StringFixed(2)})
	}
	for _, inv := range report.Invoices {
		_ = w.Write([]string{"invoice", inv.Reference(), inv.Total.StringFixed(2)})
	}
	for _, ret := range report.Returns {
		_ = w.Write([]string{"return", ret.ID, ret.RefundAmount.StringFixed(2)})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

type sheetWriter struct {
	f   *excelize.File
	err error
}

func newWorkbook(first string) (*sheetWriter, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(first)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	return &sheetWriter{f: f}, nil
}

func (s *sheetWriter) sheet(name string) {
	if s.err != nil {
		return
	}
	if idx, _ := s.f.GetSheetIndex(name); idx >= 0 {
		return
	}
	_, s.err = s.f.NewSheet(name)
}

func (s *sheetWriter) row(sheet string, row int, values ...any) {
	for c, v := range values {
		if s.err != nil {
			return
		}
		cell, err := excelize.CoordinatesToCellName(c+1, row)
		if err != nil {
			s.err = err
			return
		}
		s.err = s.f.SetCellValue(sheet, cell, v)
	}
}

func (s *sheetWriter) header(sheet string, values ...string) {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	s.row(sheet, 1, row...)
	if s.err != nil {
		return
	}
	style, err := s.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		s.err = err
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(values), 1)
	s.err = s.f.SetCellStyle(sheet, "A1", last, style)
}

func (s *sheetWriter) bytes() ([]byte, error) {
	defer s.f.Close()
	if s.err != nil {
		return nil, s.err
	}
	buf, err := s.f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func dailyReportXLSX(report domain.DailyReport) ([]byte, error) {
	wb, err := newWorkbook("Summary")
	if err != nil {
		return nil, err
	}
	wb.header("Summary", "Date", "Invoices", "Returns", "Total Sales", "Total Refunds", "Net Sales")
	wb.row("Summary", 2, report.Date, report.InvoiceCount, report.ReturnCount,
		money(report.TotalSales), money(report.TotalRefunds), money(report.NetSales))

	wb.sheet("Cashiers")
	wb.header("Cashiers", "Cashier", "Name", "Invoices", "Returns", "Total Sales", "Total Refunds")
	for i, c := range report.ByCashier {
		wb.row("Cashiers", i+2, c.CashierKey, c.CashierName, c.Invoices, c.Returns, money(c.TotalSales), money(c.TotalRefunds))
	}

	wb.sheet("Invoices")
	wb.header("Invoices", "Reference", "Created At", "Cashier", "Customer", "Payment", "Status", "Subtotal", "Discount", "Total", "Refunded")
	for i, inv := range report.Invoices {
		wb.row("Invoices", i+2, inv.Reference(), inv.CreatedAt.Format("2006-01-02 15:04:05"), inv.CashierName, inv.CustomerName,
			inv.PaymentMethod, inv.Status, money(inv.Subtotal), money(inv.DiscountAmount), money(inv.Total), money(inv.RefundedAmount))
	}

	wb.sheet("Returns")
	wb.header("Returns", "ID", "Invoice", "Processed By", "Policy", "Refund", "Reason")
	for i, ret := range report.Returns {
		wb.row("Returns", i+2, ret.ID, fmt.Sprintf("%d-%s", ret.InvoiceEpoch, ret.InvoiceNumber), ret.ProcessedByName,
			ret.RefundPolicy, money(ret.RefundAmount), ret.Reason)
	}
	return wb.bytes()
}

func monthlyReportXLSX(report domain.MonthlyReport) ([]byte, error) {
	wb, err := newWorkbook("Days")
	if err != nil {
		return nil, err
	}
	wb.header("Days", "Date", "Invoices", "Returns", "Total Sales", "Total Refunds")
	for i, d := range report.PerDay {
		wb.row("Days", i+2, d.Date, d.InvoiceCount, d.ReturnCount, money(d.TotalSales), money(d.TotalRefunds))
	}
	totalRow := len(report.PerDay) + 2
	wb.row("Days", totalRow, "Total", report.InvoiceCount, "", money(report.TotalSales), money(report.TotalRefunds))

	wb.sheet("Summary")
	wb.header("Summary", "Year", "Month", "Net Sales", "Average Invoice")
	wb.row("Summary", 2, report.Year, report.Month, money(report.NetSales), money(report.AverageInvoice))
	return wb.bytes()
}
