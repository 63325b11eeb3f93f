/*
Package sqlite persists simulated businesses in SQLite.

PURPOSE:
  Stores a sim.Snapshot so a business survives process restarts. The
  general ledger is kept as an append-only table; every other sub-ledger
  (inventory layers, orders, bills, loans, modifiers, product state,
  sales history) is rewritten on each save, inside the same database
  transaction as the ledger append.

APPEND-ONLY ENFORCEMENT:
  ledger_entries is never updated. Save inserts only the entries whose
  sequence is beyond the highest stored one. The single exception is a
  business restart, which discards history: when the stored ledger is
  no longer a prefix of the snapshot's, the business's entries are
  replaced as a whole.

KEY TABLES:
  businesses:      Config, simulated date and lifetime revenue
  ledger_entries:  Immutable journal lines, keyed by (business, sequence)
  inventory_layers, purchase_orders, bills, loans, modifiers, products,
  sales:           One JSON document per row plus indexed columns

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Callers that run commands across
  processes serialize per business with the lock package.

WAL MODE:
  File databases are opened with WAL so readers don't block the writer.

USAGE:
  store, err := sqlite.New("./data/harvest.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  err = store.Save(ctx, business.Snapshot())
  snap, err := store.Load(ctx, "acme")
  business, err := sim.Restore(snap)

SEE ALSO:
  - sim/state.go: Snapshot and Restore
  - service/service.go: load, lock, command, save
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/demand"
	"github.com/warp/harvest-engine/finance"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/payables"
	"github.com/warp/harvest-engine/procurement"
	"github.com/warp/harvest-engine/sim"
)

var ErrNotFound = errors.New("business not found")

// documentTables hold one JSON document per row, rewritten on every save.
var documentTables = []string{
	"inventory_layers", "purchase_orders", "bills", "loans", "modifiers", "products", "sales",
}

// Store persists business snapshots.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every new connection to :memory: would be a fresh empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS businesses (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT,
		config_json TEXT NOT NULL,
		sim_date TEXT NOT NULL,
		lifetime_revenue TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- General ledger (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		business_id TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
		sequence INTEGER NOT NULL,
		transaction_id TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		account TEXT NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		memo TEXT,
		reference TEXT,
		running_balance TEXT NOT NULL,
		PRIMARY KEY (business_id, sequence)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_date
		ON ledger_entries(business_id, account, entry_date);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_reference
		ON ledger_entries(business_id, reference) WHERE reference IS NOT NULL;
	`
	for _, table := range documentTables {
		schema += fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		business_id TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		status TEXT,
		on_date TEXT,
		body TEXT NOT NULL,
		PRIMARY KEY (business_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_status ON %[1]s(business_id, status);
	`, table)
	}

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SAVE
// =============================================================================

// document is one row of a document table.
type document struct {
	id     string
	status string
	date   calendar.Date
	body   any
}

// Save writes a snapshot. The ledger is appended; everything else is replaced.
func (s *Store) Save(ctx context.Context, snap sim.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := snap.Config.BusinessID
	if id == "" {
		return fmt.Errorf("save: empty business id")
	}
	cfgJSON, err := json.Marshal(snap.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO businesses (id, name, kind, config_json, sim_date, lifetime_revenue, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			config_json = excluded.config_json,
			sim_date = excluded.sim_date,
			lifetime_revenue = excluded.lifetime_revenue,
			updated_at = excluded.updated_at
	`, id, snap.Config.Name, nullString(snap.Config.Kind), string(cfgJSON),
		snap.CurrentDate.String(), snap.LifetimeRevenue.Value.String(), now, now)
	if err != nil {
		return fmt.Errorf("failed to save business: %w", err)
	}

	if err := appendEntries(ctx, sqlTx, id, snap.Entries); err != nil {
		return err
	}

	docs := map[string][]document{
		"inventory_layers": layerDocs(snap.Layers),
		"purchase_orders":  orderDocs(snap.Orders),
		"bills":            billDocs(snap.Bills),
		"loans":            loanDocs(snap.Loans),
		"modifiers":        modifierDocs(snap.Modifiers),
		"products":         productDocs(snap.Products),
		"sales":            salesDocs(snap.Sales),
	}
	for _, table := range documentTables {
		if err := replaceDocuments(ctx, sqlTx, table, id, docs[table]); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// appendEntries inserts the entries the store has not seen yet.
func appendEntries(ctx context.Context, tx *sql.Tx, businessID string, entries []ledger.Entry) error {
	var maxSeq int64
	var lastTx sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT sequence, transaction_id FROM ledger_entries
		WHERE business_id = ? ORDER BY sequence DESC LIMIT 1
	`, businessID).Scan(&maxSeq, &lastTx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read ledger head: %w", err)
	}

	rewritten := maxSeq > int64(len(entries)) ||
		(maxSeq > 0 && string(entries[maxSeq-1].TransactionID) != lastTx.String)
	if rewritten {
		if _, err := tx.ExecContext(ctx, "DELETE FROM ledger_entries WHERE business_id = ?", businessID); err != nil {
			return fmt.Errorf("failed to discard ledger: %w", err)
		}
		maxSeq = 0
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries
		(business_id, sequence, transaction_id, entry_date, account, debit, credit, memo, reference, running_balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare ledger insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries[maxSeq:] {
		_, err := stmt.ExecContext(ctx,
			businessID,
			e.Sequence,
			string(e.TransactionID),
			e.Date.String(),
			string(e.Account),
			e.Debit.Value.String(),
			e.Credit.Value.String(),
			nullString(e.Memo),
			nullString(e.Reference),
			e.RunningBalance.Value.String(),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: sequence %d already stored", ledger.ErrCorruptLedger, e.Sequence)
			}
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}
	}
	return nil
}

func replaceDocuments(ctx context.Context, tx *sql.Tx, table, businessID string, docs []document) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE business_id = ?", businessID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if len(docs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+table+" (business_id, id, position, status, on_date, body) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for i, d := range docs {
		body, err := json.Marshal(d.body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s: %w", table, d.id, err)
		}
		date := sql.NullString{}
		if !d.date.IsZero() {
			date = nullString(d.date.String())
		}
		if _, err := stmt.ExecContext(ctx, businessID, d.id, i, nullString(d.status), date, string(body)); err != nil {
			return fmt.Errorf("failed to insert %s %s: %w", table, d.id, err)
		}
	}
	return nil
}

func layerDocs(layers []inventory.Layer) []document {
	out := make([]document, len(layers))
	for i, l := range layers {
		out[i] = document{id: fmt.Sprintf("%s#%d", l.ProductID, l.AcquisitionOrder), date: l.Acquired, body: l}
	}
	return out
}

func orderDocs(orders []procurement.PurchaseOrder) []document {
	out := make([]document, len(orders))
	for i, po := range orders {
		out[i] = document{id: po.ID, status: string(po.Status), date: po.Expected, body: po}
	}
	return out
}

func billDocs(bills []payables.Bill) []document {
	out := make([]document, len(bills))
	for i, b := range bills {
		out[i] = document{id: b.ID, status: string(b.Status), date: b.Due, body: b}
	}
	return out
}

func loanDocs(loans []finance.Loan) []document {
	out := make([]document, len(loans))
	for i, l := range loans {
		out[i] = document{id: l.ID, status: string(l.Status), date: l.NextDue, body: l}
	}
	return out
}

func modifierDocs(mods []demand.Modifier) []document {
	out := make([]document, len(mods))
	for i, m := range mods {
		out[i] = document{id: m.ID, status: string(m.Kind), date: m.Start, body: m}
	}
	return out
}

func productDocs(products []sim.Product) []document {
	out := make([]document, len(products))
	for i, p := range products {
		status := "locked"
		if p.Unlocked {
			status = "unlocked"
		}
		out[i] = document{id: string(p.ID), status: status, date: p.LaunchDate, body: p}
	}
	return out
}

func salesDocs(sales []sim.SalesRecord) []document {
	out := make([]document, len(sales))
	for i, r := range sales {
		out[i] = document{id: r.Date.String() + "/" + string(r.ProductID), date: r.Date, body: r}
	}
	return out
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the latest snapshot of a business.
func (s *Store) Load(ctx context.Context, businessID string) (sim.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap sim.Snapshot
	var cfgJSON, current, revenue string
	err := s.db.QueryRowContext(ctx,
		"SELECT config_json, sim_date, lifetime_revenue FROM businesses WHERE id = ?",
		businessID,
	).Scan(&cfgJSON, &current, &revenue)
	if errors.Is(err, sql.ErrNoRows) {
		return sim.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, businessID)
	}
	if err != nil {
		return sim.Snapshot{}, fmt.Errorf("failed to load business: %w", err)
	}
	if err := json.Unmarshal([]byte(cfgJSON), &snap.Config); err != nil {
		return sim.Snapshot{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if snap.CurrentDate, err = calendar.Parse(current); err != nil {
		return sim.Snapshot{}, err
	}
	if snap.LifetimeRevenue, err = money.Parse(revenue); err != nil {
		return sim.Snapshot{}, err
	}

	if snap.Entries, err = s.loadEntries(ctx, businessID, 0); err != nil {
		return sim.Snapshot{}, err
	}
	if err := loadDocuments(ctx, s.db, "inventory_layers", businessID, &snap.Layers); err != nil {
		return sim.Snapshot{}, err
	}
	if err := loadDocuments(ctx, s.db, "purchase_orders", businessID, &snap.Orders); err != nil {
		return sim.Snapshot{}, err
	}
	if err := loadDocuments(ctx, s.db, "bills", businessID, &snap.Bills); err != nil {
		return sim.Snapshot{}, err
	}
	if err := loadDocuments(ctx, s.db, "loans", businessID, &snap.Loans); err != nil {
		return sim.Snapshot{}, err
	}
	if err := loadDocuments(ctx, s.db, "modifiers", businessID, &snap.Modifiers); err != nil {
		return sim.Snapshot{}, err
	}
	if err := loadDocuments(ctx, s.db, "products", businessID, &snap.Products); err != nil {
		return sim.Snapshot{}, err
	}
	if err := loadDocuments(ctx, s.db, "sales", businessID, &snap.Sales); err != nil {
		return sim.Snapshot{}, err
	}
	return snap, nil
}

// LedgerEntries returns the stored journal lines after a sequence number.
func (s *Store) LedgerEntries(ctx context.Context, businessID string, afterSeq int64) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadEntries(ctx, businessID, afterSeq)
}

func (s *Store) loadEntries(ctx context.Context, businessID string, afterSeq int64) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, transaction_id, entry_date, account, debit, credit, memo, reference, running_balance
		FROM ledger_entries
		WHERE business_id = ? AND sequence > ?
		ORDER BY sequence ASC
	`, businessID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e                      ledger.Entry
		txID, date, account    string
		debit, credit, running string
		memo, reference        sql.NullString
	)
	if err := rows.Scan(&e.Sequence, &txID, &date, &account, &debit, &credit, &memo, &reference, &running); err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	var err error
	if e.Date, err = calendar.Parse(date); err != nil {
		return ledger.Entry{}, err
	}
	if e.Debit, err = money.Parse(debit); err != nil {
		return ledger.Entry{}, err
	}
	if e.Credit, err = money.Parse(credit); err != nil {
		return ledger.Entry{}, err
	}
	if e.RunningBalance, err = money.Parse(running); err != nil {
		return ledger.Entry{}, err
	}
	e.TransactionID = ledger.TransactionID(txID)
	e.Account = ledger.AccountCode(account)
	e.Memo = memo.String
	e.Reference = reference.String
	return e, nil
}

// loadDocuments decodes every row of a document table into out, a pointer to a slice.
func loadDocuments[T any](ctx context.Context, db *sql.DB, table, businessID string, out *[]T) error {
	rows, err := db.QueryContext(ctx,
		"SELECT id, body FROM "+table+" WHERE business_id = ? ORDER BY position ASC", businessID)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return fmt.Errorf("failed to scan %s: %w", table, err)
		}
		var v T
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return fmt.Errorf("failed to parse %s %s: %w", table, id, err)
		}
		*out = append(*out, v)
	}
	return rows.Err()
}

// =============================================================================
// CATALOG OF BUSINESSES
// =============================================================================

// BusinessRecord is a stored business without its state.
type BusinessRecord struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Kind        string        `json:"kind,omitempty"`
	CurrentDate calendar.Date `json:"current_date"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ListBusinesses returns every stored business, ordered by id.
func (s *Store) ListBusinesses(ctx context.Context) ([]BusinessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, kind, sim_date, updated_at FROM businesses ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query businesses: %w", err)
	}
	defer rows.Close()

	var out []BusinessRecord
	for rows.Next() {
		var (
			r                BusinessRecord
			kind             sql.NullString
			current, updated string
		)
		if err := rows.Scan(&r.ID, &r.Name, &kind, &current, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		r.Kind = kind.String
		if r.CurrentDate, err = calendar.Parse(current); err != nil {
			return nil, err
		}
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Exists reports whether a business is stored.
func (s *Store) Exists(ctx context.Context, businessID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM businesses WHERE id = ?",
		businessID,
	).Scan(&count)

	return count > 0, err
}

// Delete removes a business and all of its history.
func (s *Store) Delete(ctx context.Context, businessID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM businesses WHERE id = ?", businessID)
	if err != nil {
		return fmt.Errorf("failed to delete business: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, businessID)
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
