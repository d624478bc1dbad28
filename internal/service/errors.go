package service

import "posledger/backend/internal/apperr"

var (
	ErrEmptyInvoice            = apperr.New(apperr.CodeValidation, "invoice has no items")
	ErrMissingCustomerName     = apperr.New(apperr.CodeValidation, "customer name is required")
	ErrInvalidQuantity         = apperr.New(apperr.CodeValidation, "quantity must be at least 1")
	ErrInvalidDiscount         = apperr.New(apperr.CodeValidation, "discount percent must be between 0 and 100")
	ErrInvalidManualTotal      = apperr.New(apperr.CodeValidation, "manual total must not be negative")
	ErrInvalidPaymentMethod    = apperr.New(apperr.CodeValidation, "payment method must be cash or installment")
	ErrInvalidPriceMode        = apperr.New(apperr.CodeValidation, "price mode must be sale or wholesale")
	ErrInvalidInstallmentTotal = apperr.New(apperr.CodeValidation, "installments must be positive and sum to the invoice total")
	ErrNoInvoiceSelected       = apperr.New(apperr.CodeValidation, "no invoice selected")
	ErrNoLinesSelected         = apperr.New(apperr.CodeValidation, "no return lines selected")
	ErrInvalidReturnLine       = apperr.New(apperr.CodeValidation, "return line does not exist on invoice")
	ErrInvalidDate             = apperr.New(apperr.CodeValidation, "date must be formatted YYYY-MM-DD")
	ErrInvalidProduct          = apperr.New(apperr.CodeValidation, "product code, name and positive prices are required")
	ErrInvalidCustomer         = apperr.New(apperr.CodeValidation, "customer name is required")

	ErrInsufficientStock    = apperr.New(apperr.CodeConflict, "insufficient stock")
	ErrDuplicateInvoice     = apperr.New(apperr.CodeConflict, "an identical invoice already exists")
	ErrAlreadyClosed        = apperr.New(apperr.CodeConflict, "day already closed")
	ErrDuplicateProductCode = apperr.New(apperr.CodeConflict, "product code already in use")
	ErrDuplicateCustomer    = apperr.New(apperr.CodeConflict, "customer already exists")

	ErrInvoiceSettled         = apperr.New(apperr.CodeStateConflict, "invoice has nothing left to return")
	ErrInstallmentAlreadyPaid = apperr.New(apperr.CodeStateConflict, "installment already paid")

	ErrProductNotFound     = apperr.New(apperr.CodeNotFound, "product not found")
	ErrCustomerNotFound    = apperr.New(apperr.CodeNotFound, "customer not found")
	ErrInvoiceNotFound     = apperr.New(apperr.CodeNotFound, "invoice not found")
	ErrDayNotFound         = apperr.New(apperr.CodeNotFound, "archived day not found")
	ErrInstallmentNotFound = apperr.New(apperr.CodeNotFound, "installment not found")
)
