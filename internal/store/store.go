package store

import (
	"context"
	"errors"
	"maps"

	"posledger/backend/internal/apperr"
	"posledger/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate")
	// ErrStaleWrite is returned by Commit when a base version no longer matches.
	ErrStaleWrite = apperr.New(apperr.CodeStaleWrite, "ledger changed since it was read")
)

// Collection names one independently versioned slice of the ledger state.
type Collection string

const (
	Products       Collection = "products"
	Customers      Collection = "customers"
	Invoices       Collection = "invoices"
	Returns        Collection = "returns"
	ArchivedDays   Collection = "archived_days"
	InvoiceCounter Collection = "invoice_counter"
)

var AllCollections = []Collection{Products, Customers, Invoices, Returns, ArchivedDays, InvoiceCounter}

type Versions map[Collection]int64

func (v Versions) Clone() Versions {
	if v == nil {
		return Versions{}
	}
	return maps.Clone(v)
}

// Snapshot is a point-in-time copy of every collection plus the versions it
// was read at. Callers own the returned slices.
type Snapshot struct {
	Products     []domain.Product
	Customers    []domain.Customer
	Invoices     []domain.Invoice
	Returns      []domain.ReturnRecord
	ArchivedDays []domain.ArchivedDay
	Counter      domain.InvoiceCounter
	Versions     Versions
	// LedgerID names the backing ledger. Versions only compare between
	// snapshots with the same LedgerID.
	LedgerID     string
}

// Commit replaces the Changed collections with the values in State, provided
// every collection listed in Base is still at that version.
type Commit struct {
	Base    Versions
	Changed []Collection
	State   *Snapshot
}

type LedgerStore interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
	Commit(ctx context.Context, commit Commit) (Versions, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	LedgerStore
	UserStore
}
