package postgres

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/studyauth"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestBuildUserUpdateOnlyTouchesSetFields(t *testing.T) {
	hash := "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA"
	empty := ""
	q, args := buildUserUpdate("user-1", studyauth.UserUpdate{
		PasswordHash:      &hash,
		RefreshSecretHash: &empty,
	})

	want := "UPDATE users SET updated_at = now(), password_hash = $2, refresh_secret_hash = $3 WHERE id = $1 RETURNING "
	if !strings.HasPrefix(q, want) {
		t.Fatalf("query = %q", q)
	}
	if len(args) != 3 || args[0] != "user-1" || args[1] != hash {
		t.Fatalf("args = %#v", args)
	}
	if args[2] != nil {
		t.Fatalf("empty refresh hash should be written as NULL, got %#v", args[2])
	}
}

func TestBuildUserUpdateEmpty(t *testing.T) {
	q, args := buildUserUpdate("user-1", studyauth.UserUpdate{})
	if !strings.Contains(q, "SET updated_at = now() WHERE id = $1") {
		t.Fatalf("query = %q", q)
	}
	if len(args) != 1 {
		t.Fatalf("args = %#v", args)
	}
}

func TestBuildUserUpdateKeepsEmptyDisplayName(t *testing.T) {
	name := ""
	_, args := buildUserUpdate("user-1", studyauth.UserUpdate{DisplayName: &name})
	if len(args) != 2 || args[1] != "" {
		t.Fatalf("display name must be written as empty text, got %#v", args)
	}
}

func TestMapUserWriteError(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_uq"}
	if err := mapUserWriteError("create user", dup); !errors.Is(err, studyauth.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	other := &pgconn.PgError{Code: "23502"}
	err := mapUserWriteError("create user", other)
	if errors.Is(err, studyauth.ErrUserExists) {
		t.Fatalf("not-null violation must not map to ErrUserExists")
	}
	var pgerr *pgconn.PgError
	if !errors.As(err, &pgerr) {
		t.Fatalf("expected wrapped PgError, got %v", err)
	}
}

func TestScanHelpers(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Fatal("empty string should be NULL")
	}
	if nullIfEmpty("x") != "x" {
		t.Fatal("non-empty string should pass through")
	}
	if textOrEmpty(pgtype.Text{}) != "" {
		t.Fatal("invalid text should be empty")
	}
	if textOrEmpty(pgtype.Text{String: "google", Valid: true}) != "google" {
		t.Fatal("valid text should pass through")
	}
}
