// Package repository is the PostgreSQL implementation of remote.Client. It
// uses pgx directly (no ORM). Catalog tables hold one JSONB document per row;
// registrations are relational so the database can enforce one registration
// per user and event.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/remote"
)

// PostgreSQL error codes mapped to remote errors.
const (
	codeUniqueViolation     = "23505"
	codeCheckViolation      = "23514"
	codeForeignKeyViolation = "23503"
	codeUndefinedTable      = "42P01"
)

// mapError translates pgx errors into the remote error sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return remote.ErrNoRows
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, remote.ErrDuplicate)
		case codeCheckViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, remote.ErrCheckViolation)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, remote.ErrNoRows)
		case codeUndefinedTable:
			return fmt.Errorf("%s: %w", pgErr.Message, remote.ErrUndefinedTable)
		}
	}
	return err
}

// Options configures a Backend.
type Options struct {
	JWTSecret  string
	SessionTTL time.Duration
	Mailer     Mailer
	Logger     *zap.Logger
	Now        func() time.Time
}

// Backend serves the tables and the auth API from one pool.
type Backend struct {
	db  *pgxpool.Pool
	log *zap.Logger
	now func() time.Time

	secret []byte
	ttl    time.Duration
	mailer Mailer

	mu        sync.Mutex
	session   *remote.Session
	listeners map[int]remote.AuthListener
	nextID    int
	used      map[string]bool // spent recovery token ids
}

// New constructs a Backend over db.
func New(db *pgxpool.Pool, opts Options) *Backend {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Hour
	}
	log := opts.Logger.Named("postgres")
	if opts.Mailer == nil {
		opts.Mailer = NewLogMailer(log)
	}
	return &Backend{
		db:        db,
		log:       log,
		now:       opts.Now,
		secret:    []byte(opts.JWTSecret),
		ttl:       opts.SessionTTL,
		mailer:    opts.Mailer,
		listeners: make(map[int]remote.AuthListener),
		used:      make(map[string]bool),
	}
}

// tableName validates table against the known tables and quotes it.
func tableName(table string) (string, error) {
	if !remote.KnownTable(table) {
		return "", fmt.Errorf("%q: %w", table, remote.ErrUnknownTable)
	}
	return pgx.Identifier{table}.Sanitize(), nil
}

// decodeInto converts JSON documents into dst through a JSON array.
func decodeInto(docs []json.RawMessage, dst any) error {
	if docs == nil {
		docs = []json.RawMessage{}
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// document encodes row and returns its id, generating one when missing.
func document(row any) (string, []byte, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return "", nil, fmt.Errorf("encode row: %w", err)
	}
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return "", nil, fmt.Errorf("row must be a JSON object: %w", err)
	}
	id, _ := m["id"].(string)
	if n, ok := m["id"].(json.Number); ok {
		id = n.String()
	}
	if id == "" {
		id = uuid.NewString()
		m["id"] = id
		if b, err = json.Marshal(m); err != nil {
			return "", nil, err
		}
	}
	return id, b, nil
}

func selectQuery(table, name string) string {
	if table == remote.TableRegistrations {
		return `SELECT jsonb_build_object('id', id, 'user_id', user_id, 'event_id', event_id, 'created_at', created_at)
		 FROM registrations ORDER BY created_at ASC, id ASC`
	}
	return fmt.Sprintf(`SELECT doc FROM %s ORDER BY created_at ASC, id ASC`, name)
}

// SelectAll decodes every row of table into dst, oldest first.
func (b *Backend) SelectAll(ctx context.Context, table string, dst any) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}
	rows, err := b.db.Query(ctx, selectQuery(table, name))
	if err != nil {
		return mapError(err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var doc json.RawMessage
		if err := rows.Scan(&doc); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return mapError(err)
	}
	return decodeInto(docs, dst)
}

// SelectByID decodes one row into dst.
func (b *Backend) SelectByID(ctx context.Context, table, id string, dst any) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, name)
	if table == remote.TableRegistrations {
		query = `SELECT jsonb_build_object('id', id, 'user_id', user_id, 'event_id', event_id, 'created_at', created_at)
		 FROM registrations WHERE id = $1`
	}
	var doc json.RawMessage
	if err := b.db.QueryRow(ctx, query, id).Scan(&doc); err != nil {
		return mapError(err)
	}
	if err := json.Unmarshal(doc, dst); err != nil {
		return fmt.Errorf("decode %s/%s: %w", table, id, err)
	}
	return nil
}

// Insert adds a row. Registrations go through book.
func (b *Backend) Insert(ctx context.Context, table string, row any) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}
	if table == remote.TableRegistrations {
		return b.book(ctx, row)
	}
	id, doc, err := document(row)
	if err != nil {
		return err
	}
	_, err = b.db.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)`, name), id, doc)
	return mapError(err)
}

// Upsert inserts a row or replaces the row with the same id.
func (b *Backend) Upsert(ctx context.Context, table string, row any) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}
	if table == remote.TableRegistrations {
		return fmt.Errorf("upsert on %s: %w", table, remote.ErrUnknownTable)
	}
	id, doc, err := document(row)
	if err != nil {
		return err
	}
	_, err = b.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, name),
		id, doc,
	)
	return mapError(err)
}

// DeleteByID removes a row. Deleting a missing row is not an error.
func (b *Backend) DeleteByID(ctx context.Context, table, id string) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}
	_, err = b.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, name), id)
	return mapError(err)
}

type registrationRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

// book registers a user inside one transaction.
//
// The event row is locked with SELECT ... FOR UPDATE first, so concurrent
// bookings of the same event run one after the other and can never read the
// same remaining slot count. The unique (user_id, event_id) constraint rejects
// duplicates and events_slots_check rejects a negative count.
func (b *Backend) book(ctx context.Context, row any) (err error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}
	var reg registrationRow
	if err = json.Unmarshal(raw, &reg); err != nil {
		return fmt.Errorf("decode registration: %w", err)
	}
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = b.now().UTC()
	}

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var slots *float64
	err = tx.QueryRow(ctx,
		`SELECT (doc->>'slots')::numeric FROM events WHERE id = $1 FOR UPDATE`,
		reg.EventID,
	).Scan(&slots)
	if err != nil {
		return mapError(err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO registrations (id, user_id, event_id, created_at) VALUES ($1, $2, $3, $4)`,
		reg.ID, reg.UserID, reg.EventID, reg.CreatedAt,
	)
	if err != nil {
		return mapError(err)
	}

	if slots == nil || *slots <= 0 {
		err = fmt.Errorf("event %s has no slots: %w", reg.EventID, remote.ErrCheckViolation)
		return err
	}
	_, err = tx.Exec(ctx,
		`UPDATE events SET doc = jsonb_set(doc, '{slots}', to_jsonb((doc->>'slots')::int - 1)) WHERE id = $1`,
		reg.EventID,
	)
	if err != nil {
		return mapError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ remote.Client = (*Backend)(nil)
