package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/events"
	"posledger/backend/internal/store"
	"posledger/backend/internal/store/memory"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newSeededStore(t *testing.T) *memory.Store {
	t.Helper()
	repo := memory.New()
	snap, err := repo.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap.Products = memory.SeedProducts(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if _, err := repo.Commit(context.Background(), store.Commit{Changed: []store.Collection{store.Products}, State: snap}); err != nil {
		t.Fatalf("seed products: %v", err)
	}
	return repo
}

func newTestService(t *testing.T, opts Options) (*Service, *testClock) {
	t.Helper()
	return newTestServiceWithStore(t, newSeededStore(t), opts)
}

func newTestServiceWithStore(t *testing.T, repo store.LedgerStore, opts Options) (*Service, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	opts.Now = clock.Now
	return New(repo, opts), clock
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", DisplayName: "Front Cashier", Role: "cashier"})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", DisplayName: "Administrator", Role: "admin"})
}

func line(productID string, qty int) domain.InvoiceLineRequest {
	return domain.InvoiceLineRequest{ProductID: productID, Quantity: qty}
}

func cashInvoice(t *testing.T, svc *Service, ctx context.Context, customer string, lines ...domain.InvoiceLineRequest) domain.Invoice {
	t.Helper()
	inv, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		Items:         lines,
		Customer:      domain.CustomerInput{Name: customer},
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("create invoice for %s: %v", customer, err)
	}
	return inv
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertMoney(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(money(want)) {
		t.Fatalf("%s: expected %s, got %s", label, want, got.String())
	}
}

func stockOf(t *testing.T, svc *Service, productID string) int {
	t.Helper()
	p, err := svc.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product %s: %v", productID, err)
	}
	return p.StockQuantity
}

// conflictingStore fails the first n commits as if another terminal had
// written in between.
type conflictingStore struct {
	store.LedgerStore
	failures int
	commits  int
}

func (c *conflictingStore) Commit(ctx context.Context, commit store.Commit) (store.Versions, error) {
	c.commits++
	if c.failures > 0 {
		c.failures--
		return nil, store.ErrStaleWrite
	}
	return c.LedgerStore.Commit(ctx, commit)
}

func TestMutationRetriesAfterStaleWrite(t *testing.T) {
	repo := &conflictingStore{LedgerStore: newSeededStore(t), failures: 2}
	svc, _ := newTestServiceWithStore(t, repo, Options{CommitRetries: 3})

	inv := cashInvoice(t, svc, cashierCtx(), "Retry Customer", line("1", 1))
	if inv.InvoiceNumber != "1" {
		t.Fatalf("expected first invoice number, got %s", inv.InvoiceNumber)
	}
	if repo.commits != 3 {
		t.Fatalf("expected 3 commit attempts, got %d", repo.commits)
	}
	if got := stockOf(t, svc, "1"); got != 49 {
		t.Fatalf("expected stock taken exactly once, got %d", got)
	}
}

func TestMutationSurfacesStaleWriteWhenRetriesExhausted(t *testing.T) {
	repo := &conflictingStore{LedgerStore: newSeededStore(t), failures: 10}
	svc, _ := newTestServiceWithStore(t, repo, Options{CommitRetries: 2})

	_, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceLineRequest{line("1", 1)},
		Customer:      domain.CustomerInput{Name: "Unlucky"},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, store.ErrStaleWrite) {
		t.Fatalf("expected stale write, got %v", err)
	}
	if repo.commits != 3 {
		t.Fatalf("expected first attempt plus 2 retries, got %d", repo.commits)
	}
}

func TestCommittedMutationPublishesChange(t *testing.T) {
	hub := events.NewHub()
	feed, cancel := hub.Subscribe(4)
	defer cancel()
	svc, _ := newTestService(t, Options{Events: hub})

	cashInvoice(t, svc, cashierCtx(), "Feed Customer", line("2", 1))

	select {
	case event := <-feed:
		if event.Type != events.TypeLedgerChanged {
			t.Fatalf("unexpected event type %s", event.Type)
		}
		want := []string{"customers", "invoice_counter", "invoices", "products"}
		if len(event.Collections) != len(want) {
			t.Fatalf("expected collections %v, got %v", want, event.Collections)
		}
		for i := range want {
			if event.Collections[i] != want[i] {
				t.Fatalf("expected collections %v, got %v", want, event.Collections)
			}
		}
		if event.Versions["invoices"] != 1 {
			t.Fatalf("expected invoices version 1, got %d", event.Versions["invoices"])
		}
		if event.Actor != "cashier" {
			t.Fatalf("expected actor cashier, got %s", event.Actor)
		}
	default:
		t.Fatalf("expected a change event")
	}
}

func TestFailedMutationPublishesNothing(t *testing.T) {
	hub := events.NewHub()
	feed, cancel := hub.Subscribe(4)
	defer cancel()
	svc, _ := newTestService(t, Options{Events: hub})

	_, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceLineRequest{line("5", 99)},
		Customer:      domain.CustomerInput{Name: "Too Many Beds"},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	select {
	case event := <-feed:
		t.Fatalf("unexpected event %v", event)
	default:
	}
}
