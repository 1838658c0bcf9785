package store

import (
	"context"
	"database/sql"
	"embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB implements LeadStore and ProductStore on a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against databaseURL and registers the pgvector codec
// on every connection.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect to postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Close() {
	d.pool.Close()
}

// Migrate applies the embedded goose migrations. It uses a separate
// database/sql connection because goose drives the stdlib interface.
func Migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return errors.Wrap(err, "open migration connection")
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

func (d *DB) InsertLead(ctx context.Context, lead *Lead) (int64, error) {
	const stmt = `
		INSERT INTO leads (name, email, phone, selected_product, products_discussed, summary, session_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	status := lead.Status
	if status == "" {
		status = LeadStatusNew
	}
	err := d.pool.QueryRow(ctx, stmt,
		lead.Name,
		lead.Email,
		lead.Phone,
		lead.SelectedProduct,
		lead.ProductsDiscussed,
		lead.Summary,
		lead.SessionID,
		status,
	).Scan(&lead.ID, &lead.CreatedAt)
	if err != nil {
		return 0, errors.Wrap(err, "insert lead")
	}
	lead.Status = status
	return lead.ID, nil
}

func (d *DB) UpdateLeadStatus(ctx context.Context, id int64, status string) error {
	tag, err := d.pool.Exec(ctx, `UPDATE leads SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return errors.Wrap(err, "update lead status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("lead %d not found", id)
	}
	return nil
}

func (d *DB) ListLeads(ctx context.Context, limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, name, email, phone, selected_product, products_discussed, summary, session_id, status, created_at
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := d.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list leads")
	}
	defer rows.Close()

	leads := []Lead{}
	for rows.Next() {
		var lead Lead
		if err := rows.Scan(
			&lead.ID,
			&lead.Name,
			&lead.Email,
			&lead.Phone,
			&lead.SelectedProduct,
			&lead.ProductsDiscussed,
			&lead.Summary,
			&lead.SessionID,
			&lead.Status,
			&lead.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan lead")
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// SearchProducts ranks catalog rows by cosine similarity to the query
// embedding. The <=> operator is cosine distance, so ascending order puts
// the closest match first.
func (d *DB) SearchProducts(ctx context.Context, embedding []float32, limit int) ([]ProductMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	const query = `
		SELECT id, name, category, description, price_range, features,
			1 - (embedding <=> $1) AS score
		FROM products
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`

	vector := pgvector.NewVector(embedding)
	rows, err := d.pool.Query(ctx, query, vector, limit)
	if err != nil {
		return nil, errors.Wrap(err, "search products")
	}
	defer rows.Close()

	matches := []ProductMatch{}
	for rows.Next() {
		var m ProductMatch
		if err := rows.Scan(
			&m.ID,
			&m.Name,
			&m.Category,
			&m.Description,
			&m.PriceRange,
			&m.Features,
			&m.Score,
		); err != nil {
			return nil, errors.Wrap(err, "scan product match")
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (d *DB) ListProductsWithoutEmbedding(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT id, name, category, description, price_range, features
		FROM products
		WHERE embedding IS NULL
		ORDER BY id
		LIMIT $1`

	rows, err := d.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list products without embedding")
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.PriceRange, &p.Features); err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (d *DB) SetProductEmbedding(ctx context.Context, id int64, embedding []float32) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE products SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), id)
	if err != nil {
		return errors.Wrap(err, "set product embedding")
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("product %d not found", id)
	}
	return nil
}
