package storage

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/org/passvault/pkg/models"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// credentialRow maps the passwords table. Password holds base64 ciphertext.
type credentialRow struct {
	bun.BaseModel `bun:"table:passwords"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Service       string    `bun:"service,notnull"`
	Username      string    `bun:"username,notnull"`
	Password      string    `bun:"password,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

func (r *credentialRow) toModel() (*models.Credential, error) {
	secret, err := base64.StdEncoding.DecodeString(r.Password)
	if err != nil {
		return nil, fmt.Errorf("decoding stored secret for id %d: %w", r.ID, err)
	}
	return &models.Credential{
		ID:        r.ID,
		Service:   r.Service,
		Username:  r.Username,
		Secret:    secret,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	db     *DB
	writer *bun.DB
	reader *bun.DB
	now    func() time.Time

	// mu serializes mutations on top of the single writer connection so a
	// read-modify-write in Update cannot interleave with another mutation.
	mu sync.Mutex
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the clock used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore wraps an opened, migrated DB.
func NewSQLiteStore(db *DB, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		db:     db,
		writer: bun.NewDB(db.Writer, sqlitedialect.New()),
		reader: bun.NewDB(db.Reader, sqlitedialect.New()),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the database file at path, applies migrations and returns a
// ready store. The caller owns the store and must Close it.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	db, err := NewDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLiteStore(db, opts...), nil
}

// Close releases both connection pools.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *SQLiteStore) Insert(ctx context.Context, service, username string, secret []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	row := &credentialRow{
		Service:   service,
		Username:  username,
		Password:  base64.StdEncoding.EncodeToString(secret),
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := s.writer.NewInsert().Model(row).Exec(ctx)
	if err != nil {
		return 0, &WriteError{Op: "insert", Err: err}
	}
	if row.ID == 0 {
		// Dialects without INSERT ... RETURNING leave the model id unset.
		id, err := res.LastInsertId()
		if err != nil {
			return 0, &WriteError{Op: "insert", Err: fmt.Errorf("reading inserted id: %w", err)}
		}
		row.ID = id
	}
	return row.ID, nil
}

func (s *SQLiteStore) SelectAll(ctx context.Context) ([]models.Credential, error) {
	var rows []credentialRow
	err := s.reader.NewSelect().
		Model(&rows).
		OrderExpr("created_at DESC, id DESC").
		Scan(ctx)
	if err != nil {
		return nil, &ReadError{Op: "select all", Err: err}
	}
	return toModels(rows, "select all")
}

func (s *SQLiteStore) SelectOne(ctx context.Context, id int64) (*models.Credential, error) {
	var row credentialRow
	err := s.reader.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &ReadError{Op: "select one", Err: err}
	}
	c, err := row.toModel()
	if err != nil {
		return nil, &ReadError{Op: "select one", Err: err}
	}
	return c, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, patch models.RecordPatch) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, &WriteError{Op: "update", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	var row credentialRow
	if err := tx.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &WriteError{Op: "update", Err: err}
	}

	cols := []string{"updated_at"}
	if patch.Service != nil {
		row.Service = *patch.Service
		cols = append(cols, "service")
	}
	if patch.Username != nil {
		row.Username = *patch.Username
		cols = append(cols, "username")
	}
	if patch.Secret != nil {
		row.Password = base64.StdEncoding.EncodeToString(patch.Secret)
		cols = append(cols, "password")
	}
	row.UpdatedAt = s.stamp()

	if _, err := tx.NewUpdate().Model(&row).Column(cols...).WherePK().Exec(ctx); err != nil {
		return nil, &WriteError{Op: "update", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &WriteError{Op: "update", Err: err}
	}

	c, err := row.toModel()
	if err != nil {
		return nil, &ReadError{Op: "update", Err: err}
	}
	return c, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.writer.NewDelete().
		Model((*credentialRow)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return &WriteError{Op: "remove", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &WriteError{Op: "remove", Err: err}
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, query string) ([]models.Credential, error) {
	var rows []credentialRow
	err := s.reader.NewSelect().
		Model(&rows).
		Where("service LIKE ? ESCAPE '!'", "%"+escapeLike(query)+"%").
		OrderExpr("created_at DESC, id DESC").
		Scan(ctx)
	if err != nil {
		return nil, &ReadError{Op: "search", Err: err}
	}
	return toModels(rows, "search")
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	n, err := s.reader.NewSelect().Model((*credentialRow)(nil)).Count(ctx)
	if err != nil {
		return 0, &ReadError{Op: "count", Err: err}
	}
	return int64(n), nil
}

func toModels(rows []credentialRow, op string) ([]models.Credential, error) {
	out := make([]models.Credential, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toModel()
		if err != nil {
			return nil, &ReadError{Op: op, Err: err}
		}
		out = append(out, *c)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
