package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kirill483/auth-notify/internal/model"
)

const pgUniqueViolation = "23505"

// dbtx defines the interface for database and transactions
type dbtx interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresConfig holds the configuration for connecting to a Postgres database
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore implements the Store interface using a Postgres database
type PostgresStore struct {
	db dbtx
}

// NewPostgresDB opens a connection pool and checks that the server answers.
func NewPostgresDB(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateUser inserts a user. A duplicate email yields ErrExists.
func (s *PostgresStore) CreateUser(ctx context.Context, r CreateUserRequest) (model.User, error) {
	role := r.Role
	if role == "" {
		role = model.RoleUser
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, password, role) VALUES ($1, $2, $3)
		 RETURNING id, email, password, telegram_username, role`,
		r.Email, nullString(r.PasswordHash), string(role))

	usr, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, ErrExists
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}

	return usr, nil
}

// GetUserByEmail returns ErrNotFound when no user has the email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, password, telegram_username, role FROM users WHERE email=$1`, email)

	usr, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("scan: %w", err)
	}

	return usr, nil
}

// SetTelegramUsername links a handle to the user. The handle is unique across users,
// so a handle owned by someone else yields ErrExists.
func (s *PostgresStore) SetTelegramUsername(ctx context.Context, r SetTelegramUsernameRequest) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET telegram_username=$1 WHERE email=$2`, r.TelegramUsername, r.Email)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("update user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStore) CreateLoginEvent(ctx context.Context, userID int64) (model.LoginEvent, error) {
	var e model.LoginEvent
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO login_history (user_id) VALUES ($1) RETURNING id, user_id, timestamp`, userID).
		Scan(&e.ID, &e.UserID, &e.Timestamp)
	if err != nil {
		return model.LoginEvent{}, fmt.Errorf("insert login event: %w", err)
	}

	return e, nil
}

// GetLoginHistory lists a user's login events oldest first. Unknown users simply
// have no events.
func (s *PostgresStore) GetLoginHistory(ctx context.Context, userID int64) ([]model.LoginEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, timestamp FROM login_history WHERE user_id=$1 ORDER BY timestamp, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query login history: %w", err)
	}
	defer rows.Close()

	events := make([]model.LoginEvent, 0)
	for rows.Next() {
		var e model.LoginEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate login history: %w", err)
	}

	return events, nil
}

// WithTx executes the given function within a database transaction
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return errors.New("already in transaction")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	sx := &PostgresStore{db: tx}
	if err = fn(sx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback: %v after: %w", rbErr, err)
		}

		return fmt.Errorf("transaction: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		usr      model.User
		password sql.NullString
		telegram sql.NullString
		role     string
	)

	if err := row.Scan(&usr.ID, &usr.Email, &password, &telegram, &role); err != nil {
		return model.User{}, err
	}

	usr.PasswordHash = password.String
	usr.TelegramUsername = telegram.String
	usr.Role = model.Role(role)
	return usr, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}
