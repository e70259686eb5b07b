package repository

import (
	"context"
	"fmt"

	"github.com/bjarke-xyz/appstore-api/internal/domain"
	"github.com/georgysavva/scany/v2/pgxscan"
)

type postgresDocuments struct {
	conn Connection
}

// NewPostgresDocuments keeps every collection document as one JSONB row of the
// collections table. The returned repository also implements
// domain.DocumentModifier.
func NewPostgresDocuments(conn Connection) domain.DocumentRepository {
	return &postgresDocuments{conn: conn}
}

type documentRow struct {
	Body string `db:"body"`
}

const upsertDocument = `
	INSERT INTO collections (name, body, updated_at)
	VALUES ($1, $2::jsonb, NOW())
	ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`

// Load implements domain.DocumentRepository.
func (p *postgresDocuments) Load(ctx context.Context, name string) ([]domain.Record, error) {
	var row documentRow
	err := pgxscan.Get(ctx, p.conn, &row, "SELECT body::text AS body FROM collections WHERE name = $1", name)
	if err != nil {
		if pgxscan.NotFound(err) {
			return []domain.Record{}, nil
		}
		return nil, fmt.Errorf("failed to load collection %s: %w: %w", name, domain.ErrIOFailure, err)
	}
	return decodeDocument(name, []byte(row.Body))
}

// Save implements domain.DocumentRepository.
func (p *postgresDocuments) Save(ctx context.Context, name string, records []domain.Record) error {
	data, err := encodeDocument(records)
	if err != nil {
		return err
	}
	_, err = p.conn.Exec(ctx, upsertDocument, name, string(data))
	if err != nil {
		return fmt.Errorf("failed to save collection %s: %w: %w", name, domain.ErrIOFailure, err)
	}
	return nil
}

// Modify implements domain.DocumentModifier. The row is locked with
// SELECT ... FOR UPDATE so concurrent writers in other processes queue up.
func (p *postgresDocuments) Modify(ctx context.Context, name string, fn func([]domain.Record) ([]domain.Record, error)) error {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", domain.ErrIOFailure, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "INSERT INTO collections (name, body) VALUES ($1, '[]'::jsonb) ON CONFLICT (name) DO NOTHING", name)
	if err != nil {
		return fmt.Errorf("failed to ensure collection %s: %w: %w", name, domain.ErrIOFailure, err)
	}
	var row documentRow
	err = pgxscan.Get(ctx, tx, &row, "SELECT body::text AS body FROM collections WHERE name = $1 FOR UPDATE", name)
	if err != nil {
		return fmt.Errorf("failed to lock collection %s: %w: %w", name, domain.ErrIOFailure, err)
	}
	records, err := decodeDocument(name, []byte(row.Body))
	if err != nil {
		return err
	}
	records, err = fn(records)
	if err != nil {
		return err
	}
	data, err := encodeDocument(records)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, upsertDocument, name, string(data))
	if err != nil {
		return fmt.Errorf("failed to save collection %s: %w: %w", name, domain.ErrIOFailure, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit collection %s: %w: %w", name, domain.ErrIOFailure, err)
	}
	return nil
}
