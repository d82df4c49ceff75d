package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/observability"
)

type UserRepository interface {
	FindByID(id uint) (*domain.User, error)
	FindByEmail(email string) (*domain.User, error)
	FindByRefreshTokenHash(hash string) (*domain.User, error)
	FindByPasswordResetTokenHash(hash string) (*domain.User, error)
	Create(user *domain.User) error
	UpdateCredentials(userID uint, passwordHash string) error
	SetRefreshToken(userID uint, hash *string, expiresAt *time.Time) error
	SetPasswordResetToken(userID uint, hash *string, expiresAt *time.Time) error
	MarkEmailVerified(userID uint, at time.Time) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) *GormUserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByID(id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "success")
	return &u, nil
}

func (r *GormUserRepository) FindByEmail(email string) (*domain.User, error) {
	var u domain.User
	err := r.db.Where("email = ?", normalizeEmail(email)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_by_email", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_by_email", "success")
	return &u, nil
}

func (r *GormUserRepository) FindByRefreshTokenHash(hash string) (*domain.User, error) {
	return r.findByTokenHash("refresh_token_hash", hash, "find_by_refresh_token_hash")
}

func (r *GormUserRepository) FindByPasswordResetTokenHash(hash string) (*domain.User, error) {
	return r.findByTokenHash("password_reset_token_hash", hash, "find_by_password_reset_token_hash")
}

func (r *GormUserRepository) findByTokenHash(column, hash, op string) (*domain.User, error) {
	if hash == "" {
		return nil, ErrUserNotFound
	}
	var u domain.User
	err := r.db.Where(column+" = ?", hash).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", op, "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", op, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", op, "success")
	return &u, nil
}

func (r *GormUserRepository) Create(user *domain.User) error {
	user.Email = normalizeEmail(user.Email)
	err := r.db.Create(user).Error
	if err != nil {
		if isUniqueViolation(err) {
			observability.RecordRepositoryOperation(context.Background(), "user", "create", "conflict")
			return ErrEmailTaken
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "create", "success")
	return nil
}

func (r *GormUserRepository) UpdateCredentials(userID uint, passwordHash string) error {
	err := r.db.Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"password_hash":             passwordHash,
			"password_reset_token_hash": nil,
			"password_reset_expires_at": nil,
		}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "update_credentials", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "update_credentials", "success")
	return nil
}

func (r *GormUserRepository) SetRefreshToken(userID uint, hash *string, expiresAt *time.Time) error {
	err := r.db.Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"refresh_token_hash":       hash,
			"refresh_token_expires_at": expiresAt,
		}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "set_refresh_token", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "set_refresh_token", "success")
	return nil
}

func (r *GormUserRepository) SetPasswordResetToken(userID uint, hash *string, expiresAt *time.Time) error {
	err := r.db.Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"password_reset_token_hash": hash,
			"password_reset_expires_at": expiresAt,
		}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "set_password_reset_token", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "set_password_reset_token", "success")
	return nil
}

func (r *GormUserRepository) MarkEmailVerified(userID uint, at time.Time) error {
	err := r.db.Model(&domain.User{}).
		Where("id = ?", userID).
		Update("email_verified_at", at).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "mark_email_verified", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "mark_email_verified", "success")
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
