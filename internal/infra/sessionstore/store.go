// Package sessionstore persists large media upload sessions with bun, over
// SQLite by default or Postgres when the DSN says so.
package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.opentelemetry.io/otel"

	"github.com/boddenberg/rental-api-go/internal/domain"
)

var tracer = otel.Tracer("sessionstore")

type sessionRecord struct {
	bun.BaseModel `bun:"table:upload_sessions,alias:us"`

	ID            string    `bun:"id,pk"`
	UserID        string    `bun:"user_id,notnull"`
	Bucket        string    `bun:"bucket,notnull"`
	ObjectKey     string    `bun:"object_key,notnull"`
	UploadID      string    `bun:"upload_id"`
	ContentType   string    `bun:"content_type"`
	State         string    `bun:"state,notnull"`
	TotalBytes    int64     `bun:"total_bytes,notnull"`
	UploadedBytes int64     `bun:"uploaded_bytes,notnull"`
	Error         string    `bun:"error"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newRecord(s *domain.UploadSession) *sessionRecord {
	return &sessionRecord{
		ID:            s.ID,
		UserID:        s.UserID,
		Bucket:        s.Bucket,
		ObjectKey:     s.ObjectKey,
		UploadID:      s.UploadID,
		ContentType:   s.ContentType,
		State:         string(s.State),
		TotalBytes:    s.TotalBytes,
		UploadedBytes: s.UploadedBytes,
		Error:         s.Error,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (r *sessionRecord) toDomain() *domain.UploadSession {
	return &domain.UploadSession{
		ID:            r.ID,
		UserID:        r.UserID,
		Bucket:        r.Bucket,
		ObjectKey:     r.ObjectKey,
		UploadID:      r.UploadID,
		ContentType:   r.ContentType,
		State:         domain.UploadState(r.State),
		TotalBytes:    r.TotalBytes,
		UploadedBytes: r.UploadedBytes,
		Error:         r.Error,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

// Store implements port.UploadSessionStore.
type Store struct {
	db *bun.DB
}

// Open connects to dsn. postgres:// and postgresql:// select Postgres,
// anything else is handed to SQLite.
func Open(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sessionstore: dsn is required")
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sqldb, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("sessionstore: open postgres: %w", err)
		}
		return New(bun.NewDB(sqldb, pgdialect.New())), nil
	}

	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return New(bun.NewDB(sqldb, sqlitedialect.New())), nil
}

// New wraps an existing bun database.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Init creates the sessions table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*sessionRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sessionstore: create table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateSession(ctx context.Context, session *domain.UploadSession) error {
	ctx, span := tracer.Start(ctx, "SessionStore.CreateSession")
	defer span.End()

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	if _, err := s.db.NewInsert().Model(newRecord(session)).Exec(ctx); err != nil {
		return fmt.Errorf("sessionstore: insert %s: %w", session.ID, err)
	}
	return nil
}

// UpdateSession overwrites the mutable columns of an existing session.
func (s *Store) UpdateSession(ctx context.Context, session *domain.UploadSession) error {
	ctx, span := tracer.Start(ctx, "SessionStore.UpdateSession")
	defer span.End()

	session.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model(newRecord(session)).
		Column("upload_id", "state", "uploaded_bytes", "error", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sessionstore: update %s: %w", session.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &domain.ErrNotFound{Resource: "upload session", ID: session.ID}
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.UploadSession, error) {
	ctx, span := tracer.Start(ctx, "SessionStore.GetSession")
	defer span.End()

	rec := new(sessionRecord)
	err := s.db.NewSelect().Model(rec).Where("us.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "upload session", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: get %s: %w", id, err)
	}
	return rec.toDomain(), nil
}
