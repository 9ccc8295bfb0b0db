package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"folio/api/internal/util"
)

// SQLStore persists organizations, customers and documents in Postgres or
// SQLite. Every document and customer query is scoped by org_id.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	sq      squirrel.StatementBuilderType
	now     func() time.Time
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		sq:      squirrel.StatementBuilder.PlaceholderFormat(dialect.placeholder()),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func exec(ctx context.Context, q execQuerier, builder squirrel.Sqlizer) (sql.Result, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return q.ExecContext(ctx, query, args...)
}

func queryRow(ctx context.Context, q execQuerier, builder squirrel.Sqlizer) (*sql.Row, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return q.QueryRowContext(ctx, query, args...), nil
}

func query(ctx context.Context, q execQuerier, builder squirrel.Sqlizer) (*sql.Rows, error) {
	text, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return q.QueryContext(ctx, text, args...)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}

// --- organizations & users ---

func (s *SQLStore) CreateOrganization(ctx context.Context, name string) (Organization, error) {
	org := Organization{ID: util.NewID(), Name: strings.TrimSpace(name), CreatedAt: s.now()}
	if _, err := exec(ctx, s.db, s.sq.Insert("organizations").
		Columns("id", "name", "created_at").
		Values(org.ID, org.Name, org.CreatedAt)); err != nil {
		return Organization{}, fmt.Errorf("insert organization: %w", err)
	}
	return org, nil
}

func (s *SQLStore) GetOrganization(ctx context.Context, orgID string) (Organization, error) {
	row, err := queryRow(ctx, s.db, s.sq.Select("id", "name", "created_at").From("organizations").Where(squirrel.Eq{"id": orgID}))
	if err != nil {
		return Organization{}, err
	}
	var org Organization
	if err := row.Scan(&org.ID, &org.Name, &org.CreatedAt); err != nil {
		return Organization{}, fmt.Errorf("get organization: %w", notFound(err))
	}
	org.CreatedAt = org.CreatedAt.UTC()
	return org, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, user User) (User, error) {
	user.ID = util.NewID()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.DisplayName = strings.TrimSpace(user.DisplayName)
	user.CreatedAt = s.now()
	_, err := exec(ctx, s.db, s.sq.Insert("users").
		Columns("id", "display_name", "email", "password_hash", "created_at").
		Values(user.ID, user.DisplayName, user.Email, user.PasswordHash, user.CreatedAt))
	if isUniqueViolation(err) {
		return User{}, fmt.Errorf("insert user: %w", ErrDuplicate)
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *SQLStore) getUser(ctx context.Context, where squirrel.Sqlizer) (User, error) {
	row, err := queryRow(ctx, s.db, s.sq.Select("id", "display_name", "email", "password_hash", "created_at").From("users").Where(where))
	if err != nil {
		return User{}, err
	}
	var user User
	if err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		return User{}, notFound(err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, err := s.getUser(ctx, squirrel.Eq{"id": userID})
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := s.getUser(ctx, squirrel.Eq{"email": strings.ToLower(strings.TrimSpace(email))})
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *SQLStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	res, err := exec(ctx, s.db, s.sq.Update("users").Set("password_hash", hash).Where(squirrel.Eq{"id": userID}))
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update password: %w", ErrNotFound)
	}
	return nil
}

func (s *SQLStore) AddMember(ctx context.Context, orgID, userID, role string) error {
	_, err := exec(ctx, s.db, s.sq.Insert("memberships").
		Columns("org_id", "user_id", "role", "created_at").
		Values(orgID, userID, role, s.now()))
	if isUniqueViolation(err) {
		return fmt.Errorf("add member: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *SQLStore) GetMembership(ctx context.Context, orgID, userID string) (Membership, error) {
	row, err := queryRow(ctx, s.db, s.sq.Select("m.org_id", "o.name", "m.user_id", "m.role").
		From("memberships m").
		Join("organizations o ON o.id = m.org_id").
		Where(squirrel.Eq{"m.org_id": orgID, "m.user_id": userID}))
	if err != nil {
		return Membership{}, err
	}
	var m Membership
	if err := row.Scan(&m.OrgID, &m.OrgName, &m.UserID, &m.Role); err != nil {
		return Membership{}, fmt.Errorf("get membership: %w", notFound(err))
	}
	return m, nil
}

func (s *SQLStore) ListMemberships(ctx context.Context, userID string) ([]Membership, error) {
	rows, err := query(ctx, s.db, s.sq.Select("m.org_id", "o.name", "m.user_id", "m.role").
		From("memberships m").
		Join("organizations o ON o.id = m.org_id").
		Where(squirrel.Eq{"m.user_id": userID}).
		OrderBy("o.name ASC"))
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.OrgID, &m.OrgName, &m.UserID, &m.Role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (s *SQLStore) ListMembers(ctx context.Context, orgID string) ([]Membership, error) {
	rows, err := query(ctx, s.db, s.sq.Select("m.org_id", "o.name", "m.user_id", "m.role").
		From("memberships m").
		Join("organizations o ON o.id = m.org_id").
		Where(squirrel.Eq{"m.org_id": orgID}).
		OrderBy("m.created_at ASC"))
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.OrgID, &m.OrgName, &m.UserID, &m.Role); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// --- refresh sessions & access token revocation ---

func (s *SQLStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := exec(ctx, s.db, s.sq.Insert("refresh_sessions").
		Columns("token_hash", "user_id", "expires_at").
		Values(tokenHash, userID, expiresAt.UTC()))
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *SQLStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := exec(ctx, s.db, s.sq.Update("refresh_sessions").Set("revoked_at", s.now()).Where(squirrel.Eq{"token_hash": tokenHash}))
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *SQLStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	row, err := queryRow(ctx, s.db, s.sq.Select("user_id").From("refresh_sessions").Where(squirrel.And{
		squirrel.Eq{"token_hash": tokenHash, "revoked_at": nil},
		squirrel.Gt{"expires_at": s.now()},
	}))
	if err != nil {
		return "", err
	}
	var userID string
	if err := row.Scan(&userID); err != nil {
		return "", fmt.Errorf("lookup refresh session: %w", notFound(err))
	}
	return userID, nil
}

func (s *SQLStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := exec(ctx, s.db, s.sq.Insert("revoked_access_tokens").Columns("jti", "expires_at").Values(jti, exp.UTC()))
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *SQLStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	row, err := queryRow(ctx, s.db, s.sq.Select("COUNT(1)").From("revoked_access_tokens").Where(squirrel.Eq{"jti": jti}))
	if err != nil {
		return false, err
	}
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return count > 0, nil
}
