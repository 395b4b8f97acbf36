package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/model"
)

// createTestUser inserts an account and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, name, email string) model.User {
	t.Helper()
	u := model.User{Name: name, Email: email}
	if err := db.CreateUser(context.Background(), &u, "hash-of-"+name); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	u := model.User{Name: "Ada", Email: "ada@example.com"}
	if err := db.CreateUser(context.Background(), &u, "h"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	// Filled in place through the pointer.
	if u.ID == 0 {
		t.Error("CreateUser() did not set user.ID")
	}
	if u.CreatedAt.IsZero() {
		t.Error("CreateUser() did not set user.CreatedAt")
	}
	if u.Role != model.DefaultRole {
		t.Errorf("Role = %q, want %q", u.Role, model.DefaultRole)
	}
}

func TestCreateUser_DuplicateEmailIgnoresCase(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "Ada", "ada@example.com")

	u := model.User{Name: "Other", Email: "ADA@example.com"}
	err := db.CreateUser(context.Background(), &u, "h")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateUser() duplicate error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "Ada", "ada@example.com")

	got, err := db.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Name != "Ada" || got.Email != "ada@example.com" {
		t.Errorf("GetUserByID() = %+v, want Ada <ada@example.com>", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), 404)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestGetCredentials(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "Ada", "ada@example.com")

	u, hash, err := db.GetCredentials(context.Background(), "Ada@Example.com")
	if err != nil {
		t.Fatalf("GetCredentials() error = %v", err)
	}
	if u.ID != created.ID {
		t.Errorf("ID = %d, want %d", u.ID, created.ID)
	}
	if hash != "hash-of-Ada" {
		t.Errorf("hash = %q, want %q", hash, "hash-of-Ada")
	}

	if _, _, err := db.GetCredentials(context.Background(), "nobody@example.com"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetCredentials() unknown email error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdateUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "Ada", "ada@example.com")

	u.Name = "Ada L."
	u.Role = "admin"
	if err := db.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	got, _ := db.GetUserByID(ctx, u.ID)
	if got.Name != "Ada L." || got.Role != "admin" {
		t.Errorf("after UpdateUser() got %+v", got)
	}

	if err := db.UpdateUser(ctx, model.User{ID: 404, Name: "x"}); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateUser() unknown id error = %v, want ErrNotFound", err)
	}
}
