package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/observability"
)

type VerificationTokenRepository interface {
	// Replace deletes any live token rows for the user and inserts the new
	// row in a single transaction, keeping at most one live code per user.
	Replace(token *domain.VerificationToken) error

	// FindValid returns the token row matching (userID, code) that has not
	// expired as of now.
	FindValid(userID uint, code string, now time.Time) (*domain.VerificationToken, error)

	// Consume marks the user verified and deletes the token row in one
	// transaction; partial application is never observable.
	Consume(tokenID, userID uint, verifiedAt time.Time) error
}

type GormVerificationTokenRepository struct{ db *gorm.DB }

func NewVerificationTokenRepository(db *gorm.DB) *GormVerificationTokenRepository {
	return &GormVerificationTokenRepository{db: db}
}

func (r *GormVerificationTokenRepository) Replace(token *domain.VerificationToken) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", token.UserID).Delete(&domain.VerificationToken{}).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "verification_token", "replace", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "verification_token", "replace", "success")
	return nil
}

func (r *GormVerificationTokenRepository) FindValid(userID uint, code string, now time.Time) (*domain.VerificationToken, error) {
	var t domain.VerificationToken
	err := r.db.Where("user_id = ? AND token = ? AND expires_at > ?", userID, code, now).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "verification_token", "find_valid", "not_found")
			return nil, ErrVerificationTokenNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "verification_token", "find_valid", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "verification_token", "find_valid", "success")
	return &t, nil
}

func (r *GormVerificationTokenRepository) Consume(tokenID, userID uint, verifiedAt time.Time) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", tokenID).Delete(&domain.VerificationToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVerificationTokenNotFound
		}
		return tx.Model(&domain.User{}).
			Where("id = ?", userID).
			Update("email_verified_at", verifiedAt).Error
	})
	if err != nil {
		if errors.Is(err, ErrVerificationTokenNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "verification_token", "consume", "not_found")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "verification_token", "consume", "error")
		}
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "verification_token", "consume", "success")
	return nil
}
