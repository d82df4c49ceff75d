package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
)

func newDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.VerificationToken{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newUserRepoForTest(t *testing.T) UserRepository {
	t.Helper()
	return NewUserRepository(newDBForTest(t))
}

func seedUser(t *testing.T, repo UserRepository, email string) *domain.User {
	t.Helper()
	u := &domain.User{
		Name:         "Seed User",
		Email:        email,
		PasswordHash: "bcrypt-hash",
		Role:         domain.RoleUser,
	}
	if err := repo.Create(u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func strPtr(v string) *string { return &v }

func TestCreateAndFindByEmail(t *testing.T) {
	repo := newUserRepoForTest(t)
	seedUser(t, repo, "find@example.com")

	got, err := repo.FindByEmail("find@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got.Role != domain.RoleUser {
		t.Fatalf("role=%q want %q", got.Role, domain.RoleUser)
	}

	// Lookup normalizes the address.
	if _, err := repo.FindByEmail("  FIND@Example.COM "); err != nil {
		t.Fatalf("normalized lookup: %v", err)
	}

	if _, err := repo.FindByEmail("absent@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	repo := newUserRepoForTest(t)
	seedUser(t, repo, "dup@example.com")

	err := repo.Create(&domain.User{Email: "dup@example.com", PasswordHash: "x", Role: domain.RoleUser})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	repo := newUserRepoForTest(t)
	u := seedUser(t, repo, "refresh@example.com")

	expiry := time.Now().Add(30 * 24 * time.Hour)
	if err := repo.SetRefreshToken(u.ID, strPtr("hash-1"), &expiry); err != nil {
		t.Fatalf("set refresh token: %v", err)
	}
	got, err := repo.FindByRefreshTokenHash("hash-1")
	if err != nil {
		t.Fatalf("find by refresh hash: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("found user %d want %d", got.ID, u.ID)
	}

	if err := repo.SetRefreshToken(u.ID, nil, nil); err != nil {
		t.Fatalf("clear refresh token: %v", err)
	}
	if _, err := repo.FindByRefreshTokenHash("hash-1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound after clear, got %v", err)
	}
	// An empty presented hash never matches cleared rows.
	if _, err := repo.FindByRefreshTokenHash(""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for empty hash, got %v", err)
	}
}

func TestUpdateCredentialsClearsResetFields(t *testing.T) {
	repo := newUserRepoForTest(t)
	u := seedUser(t, repo, "newpass@example.com")

	expiry := time.Now().Add(time.Hour)
	if err := repo.SetPasswordResetToken(u.ID, strPtr("reset-hash"), &expiry); err != nil {
		t.Fatalf("set reset token: %v", err)
	}
	if err := repo.UpdateCredentials(u.ID, "new-bcrypt-hash"); err != nil {
		t.Fatalf("update credentials: %v", err)
	}

	got, err := repo.FindByID(u.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if got.PasswordHash != "new-bcrypt-hash" {
		t.Fatalf("password hash not updated: %q", got.PasswordHash)
	}
	if got.PasswordResetTokenHash != nil || got.PasswordResetExpiresAt != nil {
		t.Fatal("reset fields not cleared")
	}
}

func TestMarkEmailVerified(t *testing.T) {
	repo := newUserRepoForTest(t)
	u := seedUser(t, repo, "verify@example.com")

	if u.Verified() {
		t.Fatal("new user already verified")
	}
	at := time.Now()
	if err := repo.MarkEmailVerified(u.ID, at); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	got, err := repo.FindByID(u.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if !got.Verified() {
		t.Fatal("user not verified")
	}
}
