package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"cardbored-api/internal/model"
)

// dialect captures the differences between the supported SQL engines.
type dialect struct {
	name   string
	schema []string
	// placeholder returns the bind marker for the n-th (1-based) argument.
	placeholder func(n int) string
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// SQLSnapshotStore implements SnapshotStore on database/sql.
// Prices are stored as decimal text; NULL means no price.
type SQLSnapshotStore struct {
	db      *sql.DB
	dialect dialect
	mu      sync.Mutex
}

func newSQLSnapshotStore(db *sql.DB, d dialect) (*SQLSnapshotStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.name, err)
	}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s tables: %w", d.name, err)
		}
	}
	return &SQLSnapshotStore{db: db, dialect: d}, nil
}

func (s *SQLSnapshotStore) insertPriceSQL() string {
	p := s.dialect.placeholder
	return fmt.Sprintf(`INSERT INTO card_prices (name_key, name, price, image_url, set_name, mana_cost, type_line)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`, p(1), p(2), p(3), p(4), p(5), p(6), p(7))
}

func (s *SQLSnapshotStore) insertMetaSQL() string {
	p := s.dialect.placeholder
	return fmt.Sprintf(`INSERT INTO snapshot_meta (id, fetched_at, source_updated_at, total_cards)
		VALUES (1, %s, %s, %s)`, p(1), p(2), p(3))
}

// Save replaces both tables in one transaction so readers never see a partial snapshot.
func (s *SQLSnapshotStore) Save(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM card_prices`); err != nil {
		return fmt.Errorf("failed to clear card prices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_meta`); err != nil {
		return fmt.Errorf("failed to clear snapshot meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.insertPriceSQL())
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, rec := range snap.Records {
		var price sql.NullString
		if rec.Price.Known() {
			price = sql.NullString{String: rec.Price.Amount().String(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, key, rec.Name, price, rec.ImageURL, rec.SetName, rec.ManaCost, rec.TypeLine); err != nil {
			return fmt.Errorf("failed to insert %q: %w", key, err)
		}
	}

	if _, err := tx.ExecContext(ctx, s.insertMetaSQL(), snap.FetchedAtMillis(), snap.SourceUpdatedAt, len(snap.Records)); err != nil {
		return fmt.Errorf("failed to write snapshot meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	log.Printf("[SnapshotStore] Saved %d records to %s", len(snap.Records), s.dialect.name)
	return nil
}

// Load reads the saved snapshot. It returns nil, nil when nothing was saved.
func (s *SQLSnapshotStore) Load(ctx context.Context) (*model.Snapshot, error) {
	var (
		fetchedMillis int64
		sourceUpdated sql.NullString
		total         int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at, source_updated_at, total_cards FROM snapshot_meta WHERE id = 1`,
	).Scan(&fetchedMillis, &sourceUpdated, &total)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot meta: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name_key, name, price, image_url, set_name, mana_cost, type_line FROM card_prices`)
	if err != nil {
		return nil, fmt.Errorf("failed to query card prices: %w", err)
	}
	defer rows.Close()

	records := make(map[string]model.PriceRecord, total)
	for rows.Next() {
		var (
			key   string
			price sql.NullString
			rec   model.PriceRecord
		)
		if err := rows.Scan(&key, &rec.Name, &price, &rec.ImageURL, &rec.SetName, &rec.ManaCost, &rec.TypeLine); err != nil {
			return nil, fmt.Errorf("failed to scan card price: %w", err)
		}
		rec.Price = model.UnknownPrice()
		if price.Valid {
			p, err := model.ParsePrice(price.String)
			if err != nil {
				return nil, fmt.Errorf("invalid stored price for %q: %w", key, err)
			}
			rec.Price = p
		}
		records[key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read card prices: %w", err)
	}

	return &model.Snapshot{
		Records:         records,
		FetchedAt:       time.UnixMilli(fetchedMillis),
		SourceUpdatedAt: sourceUpdated.String,
	}, nil
}

// Close closes the database.
func (s *SQLSnapshotStore) Close() error {
	return s.db.Close()
}

// schemaFor renders the shared schema with engine-specific column types.
func schemaFor(keyType, textType, bigint string) []string {
	r := strings.NewReplacer("{key}", keyType, "{text}", textType, "{bigint}", bigint)
	return []string{
		r.Replace(`CREATE TABLE IF NOT EXISTS card_prices (
			name_key {key} NOT NULL PRIMARY KEY,
			name {text} NOT NULL,
			price VARCHAR(32) NULL,
			image_url {text} NOT NULL,
			set_name {text} NOT NULL,
			mana_cost {text} NOT NULL,
			type_line {text} NOT NULL
		)`),
		r.Replace(`CREATE TABLE IF NOT EXISTS snapshot_meta (
			id INTEGER NOT NULL PRIMARY KEY,
			fetched_at {bigint} NOT NULL,
			source_updated_at {text} NULL,
			total_cards INTEGER NOT NULL
		)`),
	}
}
