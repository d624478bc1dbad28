package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	state           *store.Snapshot
	usersByUsername map[string]domain.UserAccount
}

// New returns an empty ledger with no users.
func New() *Store {
	return &Store{
		state: &store.Snapshot{
			Products:     []domain.Product{},
			Customers:    []domain.Customer{},
			Invoices:     []domain.Invoice{},
			Returns:      []domain.ReturnRecord{},
			ArchivedDays: []domain.ArchivedDay{},
			Versions:     initialVersions(),
			LedgerID:     xid.New("mem"),
		},
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// unset values fall back to dev defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username    string
		displayName string
		password    string
		role        string
	}{
		{"admin", "Administrator", adminPwd, "admin"},
		{"cashier", "Front Cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:    u.username,
			DisplayName: u.displayName,
			Password:    string(hash),
			Role:        u.role,
			Active:      true,
			CreatedAt:   now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SeedProducts is the demo furniture catalog.
func SeedProducts(now time.Time) []domain.Product {
	type seed struct {
		code, name            string
		cost, wholesale, sale int64
		minStock, stock       int
	}
	seeds := []seed{
		{"CHR001", "Wooden Chair", 100, 130, 150, 5, 50},
		{"TBL001", "Coffee Table", 180, 220, 250, 2, 20},
		{"SHL001", "Wall Shelf", 120, 160, 180, 3, 15},
		{"CAB001", "Wardrobe", 380, 450, 500, 1, 10},
		{"BED001", "Single Bed", 600, 720, 800, 2, 8},
	}
	products := make([]domain.Product, 0, len(seeds))
	for i, s := range seeds {
		products = append(products, domain.Product{
			ID:             fmt.Sprintf("%d", i+1),
			Code:           s.code,
			Name:           s.name,
			CostPrice:      decimal.NewFromInt(s.cost),
			WholesalePrice: decimal.NewFromInt(s.wholesale),
			SalePrice:      decimal.NewFromInt(s.sale),
			MinStock:       s.minStock,
			StockQuantity:  s.stock,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return products
}

func NewSeeded() *Store {
	s := New()
	s.state.Products = SeedProducts(time.Now().UTC())
	s.usersByUsername = seedUsers()
	return s
}

func initialVersions() store.Versions {
	versions := make(store.Versions, len(store.AllCollections))
	for _, c := range store.AllCollections {
		versions[c] = 0
	}
	return versions
}

func (s *Store) Snapshot(_ context.Context) (*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.CloneSnapshot(s.state), nil
}

func (s *Store) Commit(_ context.Context, commit store.Commit) (store.Versions, error) {
	if commit.State == nil || len(commit.Changed) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, c := range commit.Changed {
		if !slices.Contains(store.AllCollections, c) {
			return nil, fmt.Errorf("%w: unknown collection %q", store.ErrInvalidInput, c)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for c, base := range commit.Base {
		if s.state.Versions[c] != base {
			return nil, store.ErrStaleWrite
		}
	}

	next := commit.State
	for _, c := range commit.Changed {
		switch c {
		case store.Products:
			s.state.Products = slices.Clone(next.Products)
		case store.Customers:
			s.state.Customers = store.CloneCustomers(next.Customers)
		case store.Invoices:
			s.state.Invoices = store.CloneInvoices(next.Invoices)
		case store.Returns:
			s.state.Returns = store.CloneReturns(next.Returns)
		case store.ArchivedDays:
			s.state.ArchivedDays = store.CloneArchivedDays(next.ArchivedDays)
		case store.InvoiceCounter:
			s.state.Counter = next.Counter
		}
		s.state.Versions[c]++
	}
	return s.state.Versions.Clone(), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
