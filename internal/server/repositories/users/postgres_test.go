package users

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

var userColumns = []string{"id", "email", "display_name", "password_hash", "roles", "created_at"}

func TestPostgresFindByEmail_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	created := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, display_name, password_hash, roles, created_at")).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u-1", "alice@example.com", "Alice", "$2a$10$hash", "admin,user", created))

	repo := NewPostgresRepository(db)
	user, err := repo.FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail error: %v", err)
	}
	if user.ID != "u-1" || user.DisplayName != "Alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if len(user.Roles) != 2 || user.Roles[0] != "admin" {
		t.Fatalf("roles not decoded: %v", user.Roles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestPostgresFindByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, display_name, password_hash, roles, created_at")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userColumns))

	repo := NewPostgresRepository(db)
	_, err = repo.FindByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestRoles_JoinSplit(t *testing.T) {
	tests := []struct {
		roles []string
		text  string
	}{
		{nil, ""},
		{[]string{"user"}, "user"},
		{[]string{"admin", "user"}, "admin,user"},
	}
	for _, tc := range tests {
		if got := JoinRoles(tc.roles); got != tc.text {
			t.Fatalf("JoinRoles(%v): got %q want %q", tc.roles, got, tc.text)
		}
		back := SplitRoles(tc.text)
		if len(back) != len(tc.roles) {
			t.Fatalf("SplitRoles(%q): got %v want %v", tc.text, back, tc.roles)
		}
	}
}
