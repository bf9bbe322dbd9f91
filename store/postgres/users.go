package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrEthical07/studyauth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, display_name, avatar_url, provider, provider_user_id, refresh_secret_hash, created_at, updated_at`

// UsersStore implements studyauth.UserStore on a pgx pool.
type UsersStore struct {
	pool *pgxpool.Pool
}

var _ studyauth.UserStore = (*UsersStore)(nil)

// NewUsersStore expects the schema from the embedded migrations.
func NewUsersStore(pool *pgxpool.Pool) *UsersStore {
	return &UsersStore{pool: pool}
}

// FindUserByEmail matches the normalized email exactly.
func (s *UsersStore) FindUserByEmail(ctx context.Context, email string) (*studyauth.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.queryUser(ctx, "find user by email", q, email)
}

// FindUserByID returns studyauth.ErrUserNotFound for unknown ids.
func (s *UsersStore) FindUserByID(ctx context.Context, id string) (*studyauth.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.queryUser(ctx, "find user by id", q, id)
}

// FindUserByProvider looks up an account by its external subject.
func (s *UsersStore) FindUserByProvider(ctx context.Context, provider, providerUserID string) (*studyauth.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE provider = $1 AND provider_user_id = $2`
	return s.queryUser(ctx, "find user by provider", q, provider, providerUserID)
}

// CreateUser inserts user. Unique violations on email or provider subject
// return studyauth.ErrUserExists.
func (s *UsersStore) CreateUser(ctx context.Context, user *studyauth.User) error {
	const q = `
		INSERT INTO users (id, email, password_hash, display_name, avatar_url, provider, provider_user_id, refresh_secret_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, q,
		user.ID,
		user.Email,
		nullIfEmpty(user.PasswordHash),
		user.DisplayName,
		user.AvatarURL,
		nullIfEmpty(user.Provider),
		nullIfEmpty(user.ProviderUserID),
		nullIfEmpty(user.RefreshSecretHash),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return mapUserWriteError("create user", err)
	}
	return nil
}

// UpdateUser applies the non-nil fields of update and returns the stored row.
func (s *UsersStore) UpdateUser(ctx context.Context, id string, update studyauth.UserUpdate) (*studyauth.User, error) {
	q, args := buildUserUpdate(id, update)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapUserWriteError("update user", err)
	}
	user, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, studyauth.ErrUserNotFound
		}
		return nil, mapUserWriteError("update user", err)
	}
	return user, nil
}

func (s *UsersStore) queryUser(ctx context.Context, op, q string, args ...any) (*studyauth.User, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, studyauth.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func scanUser(row pgx.CollectableRow) (*studyauth.User, error) {
	var (
		u              studyauth.User
		passwordHash   pgtype.Text
		provider       pgtype.Text
		providerUserID pgtype.Text
		refreshHash    pgtype.Text
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&passwordHash,
		&u.DisplayName,
		&u.AvatarURL,
		&provider,
		&providerUserID,
		&refreshHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = textOrEmpty(passwordHash)
	u.Provider = textOrEmpty(provider)
	u.ProviderUserID = textOrEmpty(providerUserID)
	u.RefreshSecretHash = textOrEmpty(refreshHash)
	return &u, nil
}

// buildUserUpdate renders an UPDATE touching only the non-nil fields of
// update. updated_at is always bumped so an empty update still returns the row.
func buildUserUpdate(id string, update studyauth.UserUpdate) (string, []any) {
	var (
		sets = []string{"updated_at = now()"}
		args = []any{id}
	)
	add := func(column string, v *string, nullable bool) {
		if v == nil {
			return
		}
		if nullable {
			args = append(args, nullIfEmpty(*v))
		} else {
			args = append(args, *v)
		}
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	add("password_hash", update.PasswordHash, true)
	add("display_name", update.DisplayName, false)
	add("avatar_url", update.AvatarURL, false)
	add("provider", update.Provider, true)
	add("provider_user_id", update.ProviderUserID, true)
	add("refresh_secret_hash", update.RefreshSecretHash, true)

	q := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + userColumns
	return q, args
}

func mapUserWriteError(op string, err error) error {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", studyauth.ErrUserExists, pgerr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}
