package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_collections (
	name       text PRIMARY KEY,
	version    bigint NOT NULL DEFAULT 0,
	payload    jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_meta (
	key   text PRIMARY KEY,
	value text NOT NULL
);

CREATE TABLE IF NOT EXISTS app_users (
	username     text PRIMARY KEY,
	display_name text NOT NULL DEFAULT '',
	password     text NOT NULL,
	role         text NOT NULL DEFAULT 'cashier',
	active       boolean NOT NULL DEFAULT true,
	created_at   timestamptz NOT NULL DEFAULT now(),
	updated_at   timestamptz NOT NULL DEFAULT now()
);
`

const ledgerIDKey = "ledger_id"

type Store struct {
	db       *sql.DB
	log      zerolog.Logger
	ledgerID string
}

func New(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, log: log.With().Str("component", "postgres-store").Logger()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the tables and loads the ledger identity, minting
// one the first time the database is used.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_meta (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, ledgerIDKey, xid.New("pg")); err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx, `SELECT value FROM ledger_meta WHERE key = $1`, ledgerIDKey).Scan(&s.ledgerID)
}

// LedgerID is empty until EnsureSchema has run.
func (s *Store) LedgerID() string {
	return s.ledgerID
}

// SeedCatalog stores products as the initial catalog when none exists yet.
func (s *Store) SeedCatalog(ctx context.Context, products []domain.Product) error {
	payload, err := json.Marshal(products)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_collections (name, version, payload, updated_at)
		VALUES ($1, 1, $2, now())
		ON CONFLICT (name) DO NOTHING
	`, string(store.Products), payload)
	return err
}

func (s *Store) Snapshot(ctx context.Context) (*store.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, version, payload
		FROM ledger_collections
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := &store.Snapshot{
		Products:     []domain.Product{},
		Customers:    []domain.Customer{},
		Invoices:     []domain.Invoice{},
		Returns:      []domain.ReturnRecord{},
		ArchivedDays: []domain.ArchivedDay{},
		Versions:     store.Versions{},
		LedgerID:     s.ledgerID,
	}
	for _, c := range store.AllCollections {
		snap.Versions[c] = 0
	}

	for rows.Next() {
		var (
			name    string
			version int64
			payload []byte
		)
		if err := rows.Scan(&name, &version, &payload); err != nil {
			return nil, err
		}
		c := store.Collection(name)
		if !slices.Contains(store.AllCollections, c) {
			continue
		}
		snap.Versions[c] = version
		if err := s.decodeCollection(ctx, c, payload, snap); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) decodeCollection(ctx context.Context, c store.Collection, payload []byte, snap *store.Snapshot) error {
	var err error
	switch c {
	case store.Products:
		err = json.Unmarshal(payload, &snap.Products)
	case store.Customers:
		err = json.Unmarshal(payload, &snap.Customers)
	case store.Invoices:
		err = json.Unmarshal(payload, &snap.Invoices)
	case store.Returns:
		err = json.Unmarshal(payload, &snap.Returns)
	case store.InvoiceCounter:
		err = json.Unmarshal(payload, &snap.Counter)
	case store.ArchivedDays:
		// An unreadable archive must not take down the live ledger.
		if uerr := json.Unmarshal(payload, &snap.ArchivedDays); uerr != nil {
			s.log.Warn().Ctx(ctx).Err(uerr).Msg("archived days payload unreadable, treating archive as empty")
			snap.ArchivedDays = []domain.ArchivedDay{}
		}
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", c, err)
	}
	return nil
}

func (s *Store) Commit(ctx context.Context, commit store.Commit) (store.Versions, error) {
	if commit.State == nil || len(commit.Changed) == 0 {
		return nil, store.ErrInvalidInput
	}

	payloads := make(map[store.Collection][]byte, len(commit.Changed))
	for _, c := range commit.Changed {
		payload, err := encodeCollection(c, commit.State)
		if err != nil {
			return nil, err
		}
		payloads[c] = payload
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	names := make([]string, 0, len(commit.Base)+len(commit.Changed))
	for c := range commit.Base {
		names = append(names, string(c))
	}
	for _, c := range commit.Changed {
		if !slices.Contains(names, string(c)) {
			names = append(names, string(c))
		}
	}

	current, err := lockVersions(ctx, tx, names)
	if err != nil {
		return nil, mapCommitError(err)
	}
	for c, base := range commit.Base {
		if current[c] != base {
			return nil, store.ErrStaleWrite
		}
	}

	for _, c := range commit.Changed {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_collections (name, version, payload, updated_at)
			VALUES ($1, 1, $2, now())
			ON CONFLICT (name)
			DO UPDATE SET version = ledger_collections.version + 1, payload = EXCLUDED.payload, updated_at = now()
		`, string(c), payloads[c]); err != nil {
			return nil, mapCommitError(err)
		}
	}

	versions, err := readVersions(ctx, tx)
	if err != nil {
		return nil, mapCommitError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapCommitError(err)
	}
	return versions, nil
}

func encodeCollection(c store.Collection, state *store.Snapshot) ([]byte, error) {
	var value any
	switch c {
	case store.Products:
		value = nonNil(state.Products)
	case store.Customers:
		value = nonNil(state.Customers)
	case store.Invoices:
		value = nonNil(state.Invoices)
	case store.Returns:
		value = nonNil(state.Returns)
	case store.ArchivedDays:
		value = nonNil(state.ArchivedDays)
	case store.InvoiceCounter:
		value = state.Counter
	default:
		return nil, fmt.Errorf("%w: unknown collection %q", store.ErrInvalidInput, c)
	}
	return json.Marshal(value)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func lockVersions(ctx context.Context, tx *sql.Tx, names []string) (store.Versions, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT name, version
		FROM ledger_collections
		WHERE name = ANY($1)
		FOR UPDATE
	`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVersions(rows)
}

func readVersions(ctx context.Context, tx *sql.Tx) (store.Versions, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name, version FROM ledger_collections`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	versions, err := scanVersions(rows)
	if err != nil {
		return nil, err
	}
	for _, c := range store.AllCollections {
		if _, ok := versions[c]; !ok {
			versions[c] = 0
		}
	}
	return versions, nil
}

func scanVersions(rows *sql.Rows) (store.Versions, error) {
	versions := store.Versions{}
	for rows.Next() {
		var (
			name    string
			version int64
		)
		if err := rows.Scan(&name, &version); err != nil {
			return nil, err
		}
		versions[store.Collection(name)] = version
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return versions, nil
}

// mapCommitError folds serialization failures and racing first inserts into
// ErrStaleWrite so callers retry them like any other version mismatch.
func mapCommitError(err error) error {
	if isSerializationFailure(err) || isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", store.ErrStaleWrite, err)
	}
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, display_name, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.DisplayName, user.Password, user.Role, true, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, display_name, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.DisplayName, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}
