// Package pg provides a photo provider backed by a PostgreSQL photo
// index. Enumeration uses keyset pagination over (taken_at, id) encoded
// as opaque cursors, so pages stay stable while rows are inserted.
package pg

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/photosweep/photosweep/internal/metrics"
	"github.com/photosweep/photosweep/internal/photostore"
	"github.com/photosweep/photosweep/internal/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS photos (
	id        TEXT PRIMARY KEY,
	album_id  TEXT NOT NULL DEFAULT '',
	taken_at  BIGINT NOT NULL,
	width     INT NOT NULL DEFAULT 0,
	height    INT NOT NULL DEFAULT 0,
	uri       TEXT NOT NULL,
	byte_size BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_photos_taken_at ON photos (taken_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_photos_album ON photos (album_id, taken_at DESC, id DESC);
`

// Provider implements photostore.Provider over a photos table.
type Provider struct {
	db    *sql.DB
	retry retry.Config
}

// New connects to the database and ensures the schema exists.
func New(databaseURL string) (*Provider, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Provider{db: db, retry: retry.DefaultConfig()}, nil
}

// DB returns the underlying database connection.
func (p *Provider) DB() *sql.DB {
	return p.db
}

// Upsert inserts or updates one photo row. Used by library ingest tooling
// and tests.
func (p *Provider) Upsert(ctx context.Context, d photostore.Descriptor, albumID string, byteSize int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO photos (id, album_id, taken_at, width, height, uri, byte_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			album_id = EXCLUDED.album_id,
			taken_at = EXCLUDED.taken_at,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			uri = EXCLUDED.uri,
			byte_size = EXCLUDED.byte_size`,
		d.ID, albumID, d.TakenAt, d.Width, d.Height, d.URI, byteSize)
	if err != nil {
		return fmt.Errorf("upsert photo: %w", err)
	}
	return nil
}

type cursor struct {
	takenAt int64
	id      string
}

func encodeCursor(c cursor) string {
	raw := strconv.FormatInt(c.takenAt, 10) + "|" + c.id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (cursor, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return cursor{}, false
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return cursor{}, false
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return cursor{}, false
	}
	return cursor{takenAt: ts, id: parts[1]}, true
}

// FirstPage returns the first page of descriptors for a scope.
func (p *Provider) FirstPage(ctx context.Context, scope photostore.Scope, pageSize int) (photostore.Page, error) {
	return p.page(ctx, scope, nil, pageSize)
}

// NextPage continues enumeration after the given cursor. An opaque cursor
// that no longer decodes reads as exhaustion.
func (p *Provider) NextPage(ctx context.Context, scope photostore.Scope, after string, pageSize int) (photostore.Page, error) {
	c, ok := decodeCursor(after)
	if !ok {
		return photostore.Page{}, nil
	}
	return p.page(ctx, scope, &c, pageSize)
}

func (p *Provider) page(ctx context.Context, scope photostore.Scope, after *cursor, pageSize int) (photostore.Page, error) {
	start := time.Now()
	defer func() { metrics.RecordProviderOp("pg", "page", time.Since(start)) }()

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if scope.IsRange() {
		conds = append(conds,
			"taken_at >= "+arg(scope.Start),
			"taken_at < "+arg(scope.End))
	} else {
		conds = append(conds, "album_id = "+arg(scope.AlbumID))
	}
	if after != nil {
		ts := arg(after.takenAt)
		conds = append(conds, fmt.Sprintf("(taken_at < %s OR (taken_at = %s AND id < %s))", ts, ts, arg(after.id)))
	}

	query := fmt.Sprintf(`
		SELECT id, taken_at, width, height, uri
		FROM photos
		WHERE %s
		ORDER BY taken_at DESC, id DESC
		LIMIT %d`, strings.Join(conds, " AND "), pageSize+1)

	rows, err := retry.DoWithResult(ctx, p.retry, func() (*sql.Rows, error) {
		rows, err := p.db.QueryContext(ctx, query, args...)
		if err != nil {
			// Driver errors here are overwhelmingly transient
			// (connection churn); the engine treats whatever
			// survives retries as exhaustion anyway.
			return nil, retry.Retryable(err)
		}
		return rows, nil
	})
	if err != nil {
		return photostore.Page{}, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	var page photostore.Page
	for rows.Next() {
		var d photostore.Descriptor
		if err := rows.Scan(&d.ID, &d.TakenAt, &d.Width, &d.Height, &d.URI); err != nil {
			return photostore.Page{}, fmt.Errorf("scan photo: %w", err)
		}
		if len(page.Items) == pageSize {
			page.HasNextPage = true
			break
		}
		page.Items = append(page.Items, d)
		page.EndCursor = encodeCursor(cursor{takenAt: d.TakenAt, id: d.ID})
	}
	if err := rows.Err(); err != nil {
		return photostore.Page{}, fmt.Errorf("iterate photos: %w", err)
	}
	return page, nil
}

// NearestBefore returns the newest taken_at strictly older than ts.
func (p *Provider) NearestBefore(ctx context.Context, ts int64) (int64, bool, error) {
	var found int64
	err := p.db.QueryRowContext(ctx, `
		SELECT taken_at FROM photos
		WHERE taken_at < $1
		ORDER BY taken_at DESC
		LIMIT 1`, ts).Scan(&found)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query nearest photo: %w", err)
	}
	return found, true, nil
}

// Resolve reads the stored URI and exact byte size for an asset.
func (p *Provider) Resolve(ctx context.Context, d photostore.Descriptor) (photostore.Resolution, error) {
	start := time.Now()
	defer func() { metrics.RecordProviderOp("pg", "resolve", time.Since(start)) }()

	var res photostore.Resolution
	err := p.db.QueryRowContext(ctx, `
		SELECT uri, byte_size FROM photos WHERE id = $1`, d.ID).
		Scan(&res.URI, &res.ByteSize)
	if err != nil {
		return photostore.Resolution{}, fmt.Errorf("resolve photo %s: %w", d.ID, err)
	}
	return res, nil
}

// Delete removes the given rows in one transaction. All-or-nothing: a
// missing id rolls back the whole batch.
func (p *Provider) Delete(ctx context.Context, ids []string) error {
	start := time.Now()
	defer func() { metrics.RecordProviderOp("pg", "delete", time.Since(start)) }()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("delete photos: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete photos: %w", err)
	}
	if affected != int64(len(ids)) {
		return fmt.Errorf("delete photos: %d of %d rows matched", affected, len(ids))
	}
	return tx.Commit()
}

// Type returns the provider type identifier.
func (p *Provider) Type() string {
	return "pg"
}

// Close closes the database connection.
func (p *Provider) Close() error {
	return p.db.Close()
}
