// Package sqlstore is a PostgreSQL-backed reference implementation of
// internal/collab.Store, built behind the "sqlstore" build tag so the
// core module never pulls in a live database dependency. It exists to
// give the persistent-store collaborator contract a real backing once
// an operator wants one; collabstore.MemStore remains the default for
// local development and the bundled cmd/hubctl and cmd/syncworker tools.
//
//go:build sqlstore

package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	svcerrors "github.com/game-hub/wbp-hub/infrastructure/errors"
	"github.com/game-hub/wbp-hub/internal/collab"
	"github.com/game-hub/wbp-hub/internal/model"
)

// Store implements collab.Store and collab.AuditLog on top of a
// *sqlx.DB, following the teacher's direct database/sql+lib/pq query
// style (internal/app/jam/store_pg.go) rather than sqlx's struct
// scanning, since the hub's row shapes carry nested maps/slices that
// need explicit JSON and pq.Array handling either way.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres at dsn and verifies connectivity with a ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the tables this store needs if they don't already exist.
// It is intentionally a fixed DDL set, not a migration framework: schema
// evolution is out of scope for a reference collaborator implementation.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaDDL)
	return err
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS hub_servers (
	server_id          TEXT PRIMARY KEY,
	core_kind          TEXT NOT NULL,
	preferred_mode     TEXT NOT NULL,
	connection_config  JSONB NOT NULL DEFAULT '{}',
	owner_id           TEXT NOT NULL DEFAULT '',
	tags               TEXT[] NOT NULL DEFAULT '{}',
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS hub_acl (
	user_id TEXT NOT NULL,
	op      TEXT NOT NULL,
	PRIMARY KEY (user_id, op)
);

CREATE TABLE IF NOT EXISTS hub_bindings (
	binding_id       TEXT PRIMARY KEY,
	group_id         TEXT NOT NULL,
	server_id        TEXT NOT NULL,
	binding_kind     TEXT NOT NULL,
	filters          JSONB NOT NULL DEFAULT '[]',
	format_template  TEXT NOT NULL DEFAULT '',
	rate_limit_max   INTEGER NOT NULL DEFAULT 0,
	rate_limit_window BIGINT NOT NULL DEFAULT 0,
	disabled         BOOLEAN NOT NULL DEFAULT FALSE,
	last_activity    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS hub_tokens (
	token_id   TEXT PRIMARY KEY,
	token_hash TEXT NOT NULL,
	server_id  TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS hub_audit (
	id            BIGSERIAL PRIMARY KEY,
	user_id       TEXT NOT NULL DEFAULT '',
	server_id     TEXT NOT NULL DEFAULT '',
	op            TEXT NOT NULL,
	payload       JSONB,
	result        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	ip            TEXT NOT NULL DEFAULT '',
	user_agent    TEXT NOT NULL DEFAULT '',
	at            TIMESTAMPTZ NOT NULL
);
`

func (s *Store) GetServer(ctx context.Context, serverID string) (*model.ServerDescriptor, error) {
	var (
		sd        model.ServerDescriptor
		cfgRaw    []byte
		tags      pq.StringArray
		preferred string
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT server_id, core_kind, preferred_mode, connection_config, owner_id, tags, created_at, updated_at
		FROM hub_servers WHERE server_id = $1`, serverID)
	if err := row.Scan(&sd.ServerID, &sd.CoreKind, &preferred, &cfgRaw, &sd.OwnerID, &tags, &sd.CreatedAt, &sd.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, svcerrors.ServerUnavailable(serverID).WithDetails("reason", "not registered")
		}
		return nil, svcerrors.Internal("query server", err)
	}
	sd.PreferredMode = model.ConnectionMode(preferred)
	sd.Tags = []string(tags)
	if err := json.Unmarshal(cfgRaw, &sd.ConnectionConfig); err != nil {
		return nil, svcerrors.Internal("decode connection config", err)
	}
	return &sd, nil
}

func (s *Store) ListServers(ctx context.Context) ([]*model.ServerDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT server_id, core_kind, preferred_mode, connection_config, owner_id, tags, created_at, updated_at
		FROM hub_servers ORDER BY server_id`)
	if err != nil {
		return nil, svcerrors.Internal("list servers", err)
	}
	defer rows.Close()

	var out []*model.ServerDescriptor
	for rows.Next() {
		var (
			sd        model.ServerDescriptor
			cfgRaw    []byte
			tags      pq.StringArray
			preferred string
		)
		if err := rows.Scan(&sd.ServerID, &sd.CoreKind, &preferred, &cfgRaw, &sd.OwnerID, &tags, &sd.CreatedAt, &sd.UpdatedAt); err != nil {
			return nil, svcerrors.Internal("scan server", err)
		}
		sd.PreferredMode = model.ConnectionMode(preferred)
		sd.Tags = []string(tags)
		if err := json.Unmarshal(cfgRaw, &sd.ConnectionConfig); err != nil {
			return nil, svcerrors.Internal("decode connection config", err)
		}
		out = append(out, &sd)
	}
	return out, rows.Err()
}

func (s *Store) CreateServer(ctx context.Context, sd *model.ServerDescriptor) error {
	now := time.Now()
	sd.CreatedAt, sd.UpdatedAt = now, now
	cfgRaw, err := json.Marshal(sd.ConnectionConfig)
	if err != nil {
		return svcerrors.Internal("encode connection config", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hub_servers (server_id, core_kind, preferred_mode, connection_config, owner_id, tags, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sd.ServerID, sd.CoreKind, string(sd.PreferredMode), cfgRaw, sd.OwnerID, pq.Array(sd.Tags), sd.CreatedAt, sd.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return svcerrors.InvalidRequest("server already registered: " + sd.ServerID)
		}
		return svcerrors.Internal("insert server", err)
	}
	return nil
}

func (s *Store) UpdateServer(ctx context.Context, sd *model.ServerDescriptor) error {
	sd.UpdatedAt = time.Now()
	cfgRaw, err := json.Marshal(sd.ConnectionConfig)
	if err != nil {
		return svcerrors.Internal("encode connection config", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE hub_servers SET core_kind=$2, preferred_mode=$3, connection_config=$4, owner_id=$5, tags=$6, updated_at=$7
		WHERE server_id=$1`,
		sd.ServerID, sd.CoreKind, string(sd.PreferredMode), cfgRaw, sd.OwnerID, pq.Array(sd.Tags), sd.UpdatedAt)
	if err != nil {
		return svcerrors.Internal("update server", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return svcerrors.ServerUnavailable(sd.ServerID).WithDetails("reason", "not registered")
	}
	return nil
}

func (s *Store) DeleteServer(ctx context.Context, serverID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return svcerrors.Internal("begin delete server tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM hub_bindings WHERE server_id=$1`, serverID); err != nil {
		return svcerrors.Internal("delete bindings", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM hub_tokens WHERE server_id=$1`, serverID); err != nil {
		return svcerrors.Internal("delete tokens", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM hub_servers WHERE server_id=$1`, serverID)
	if err != nil {
		return svcerrors.Internal("delete server", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return svcerrors.ServerUnavailable(serverID).WithDetails("reason", "not registered")
	}
	return tx.Commit()
}

func (s *Store) ListACL(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT op FROM hub_acl WHERE user_id=$1 ORDER BY op`, userID)
	if err != nil {
		return nil, svcerrors.Internal("list acl", err)
	}
	defer rows.Close()
	var ops []string
	for rows.Next() {
		var op string
		if err := rows.Scan(&op); err != nil {
			return nil, svcerrors.Internal("scan acl", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (s *Store) ListBindings(ctx context.Context, serverID string) ([]*model.Binding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT binding_id, group_id, server_id, binding_kind, filters, format_template, rate_limit_max, rate_limit_window, disabled, last_activity
		FROM hub_bindings WHERE server_id=$1`, serverID)
	if err != nil {
		return nil, svcerrors.Internal("list bindings", err)
	}
	defer rows.Close()

	var out []*model.Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBinding(row rowScanner) (*model.Binding, error) {
	var (
		b          model.Binding
		filtersRaw []byte
		kind       string
		windowNs   int64
		lastActive sql.NullTime
	)
	if err := row.Scan(&b.BindingID, &b.GroupID, &b.ServerID, &kind, &filtersRaw, &b.FormatTemplate,
		&b.RateLimitMax, &windowNs, &b.Disabled, &lastActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, svcerrors.InvalidRequest("binding not found")
		}
		return nil, svcerrors.Internal("scan binding", err)
	}
	b.BindingKind = model.BindingKind(kind)
	b.RateLimitWindow = time.Duration(windowNs)
	if lastActive.Valid {
		b.LastActivity = lastActive.Time
	}
	if len(filtersRaw) > 0 {
		if err := json.Unmarshal(filtersRaw, &b.Filters); err != nil {
			return nil, svcerrors.Internal("decode binding filters", err)
		}
	}
	return &b, nil
}

func (s *Store) CreateBinding(ctx context.Context, b *model.Binding) error {
	filtersRaw, err := json.Marshal(b.Filters)
	if err != nil {
		return svcerrors.Internal("encode binding filters", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hub_bindings (binding_id, group_id, server_id, binding_kind, filters, format_template, rate_limit_max, rate_limit_window, disabled, last_activity)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.BindingID, b.GroupID, b.ServerID, string(b.BindingKind), filtersRaw, b.FormatTemplate,
		b.RateLimitMax, int64(b.RateLimitWindow), b.Disabled, nullableTime(b.LastActivity))
	if err != nil {
		if isUniqueViolation(err) {
			return svcerrors.InvalidRequest("binding already exists: " + b.BindingID)
		}
		return svcerrors.Internal("insert binding", err)
	}
	return nil
}

func (s *Store) UpdateBinding(ctx context.Context, b *model.Binding) error {
	filtersRaw, err := json.Marshal(b.Filters)
	if err != nil {
		return svcerrors.Internal("encode binding filters", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE hub_bindings SET group_id=$2, server_id=$3, binding_kind=$4, filters=$5, format_template=$6,
			rate_limit_max=$7, rate_limit_window=$8, disabled=$9, last_activity=$10
		WHERE binding_id=$1`,
		b.BindingID, b.GroupID, b.ServerID, string(b.BindingKind), filtersRaw, b.FormatTemplate,
		b.RateLimitMax, int64(b.RateLimitWindow), b.Disabled, nullableTime(b.LastActivity))
	if err != nil {
		return svcerrors.Internal("update binding", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return svcerrors.InvalidRequest("binding not found: " + b.BindingID)
	}
	return nil
}

func (s *Store) DeleteBinding(ctx context.Context, bindingID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM hub_bindings WHERE binding_id=$1`, bindingID)
	if err != nil {
		return svcerrors.Internal("delete binding", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return svcerrors.InvalidRequest("binding not found: " + bindingID)
	}
	return nil
}

func (s *Store) CreateToken(ctx context.Context, tokenHash, serverID string, expiresAt time.Time) (string, error) {
	tokenID := newTokenID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hub_tokens (token_id, token_hash, server_id, expires_at) VALUES ($1,$2,$3,$4)`,
		tokenID, tokenHash, serverID, expiresAt)
	if err != nil {
		return "", svcerrors.Internal("insert token", err)
	}
	return tokenID, nil
}

func (s *Store) GetToken(ctx context.Context, tokenID string) (string, time.Time, error) {
	var serverID string
	var expiresAt time.Time
	row := s.db.QueryRowContext(ctx, `SELECT server_id, expires_at FROM hub_tokens WHERE token_id=$1`, tokenID)
	if err := row.Scan(&serverID, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, svcerrors.InvalidRequest("token not found")
		}
		return "", time.Time{}, svcerrors.Internal("query token", err)
	}
	return serverID, expiresAt, nil
}

func (s *Store) DeleteToken(ctx context.Context, tokenID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM hub_tokens WHERE token_id=$1`, tokenID)
	if err != nil {
		return svcerrors.Internal("delete token", err)
	}
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, entry collab.AuditEntry) error {
	payloadRaw, err := json.Marshal(entry.Payload)
	if err != nil {
		return svcerrors.Internal("encode audit payload", err)
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hub_audit (user_id, server_id, op, payload, result, error_message, ip, user_agent, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.UserID, entry.ServerID, entry.Op, payloadRaw, string(entry.Result), entry.ErrorMessage, entry.IP, entry.UserAgent, at)
	if err != nil {
		return svcerrors.Internal("insert audit entry", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter collab.AuditFilter) ([]collab.AuditEntry, error) {
	query := `SELECT user_id, server_id, op, payload, result, error_message, ip, user_agent, at FROM hub_audit WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.UserID != "" {
		query += " AND user_id = " + arg(filter.UserID)
	}
	if filter.ServerID != "" {
		query += " AND server_id = " + arg(filter.ServerID)
	}
	if filter.Op != "" {
		query += " AND op = " + arg(filter.Op)
	}
	if !filter.Since.IsZero() {
		query += " AND at >= " + arg(filter.Since)
	}
	if !filter.Until.IsZero() {
		query += " AND at <= " + arg(filter.Until)
	}
	query += " ORDER BY at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, svcerrors.Internal("query audit", err)
	}
	defer rows.Close()

	var out []collab.AuditEntry
	for rows.Next() {
		var e collab.AuditEntry
		var payloadRaw []byte
		var result string
		if err := rows.Scan(&e.UserID, &e.ServerID, &e.Op, &payloadRaw, &result, &e.ErrorMessage, &e.IP, &e.UserAgent, &e.At); err != nil {
			return nil, svcerrors.Internal("scan audit entry", err)
		}
		e.Result = collab.AuditResult(result)
		if len(payloadRaw) > 0 {
			if err := json.Unmarshal(payloadRaw, &e.Payload); err != nil {
				return nil, svcerrors.Internal("decode audit payload", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CleanupAudit(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM hub_audit WHERE at < $1`, olderThan)
	if err != nil {
		return 0, svcerrors.Internal("cleanup audit", err)
	}
	return res.RowsAffected()
}

func newTokenID() string { return uuid.NewString() }

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

var _ collab.Store = (*Store)(nil)
var _ collab.AuditLog = (*Store)(nil)
