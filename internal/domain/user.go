package domain

import "time"

type Role string

const (
	RoleUser   Role = "USER"
	RoleEditor Role = "EDITOR"
	RoleAdmin  Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	Name                   string     `gorm:"size:255" json:"name"`
	Email                  string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash           string     `gorm:"size:128;not null" json:"-"`
	Role                   Role       `gorm:"size:16;not null;default:USER" json:"role"`
	EmailVerifiedAt        *time.Time `gorm:"index" json:"email_verified_at,omitempty"`
	RefreshTokenHash       *string    `gorm:"size:128;uniqueIndex" json:"-"`
	RefreshTokenExpiresAt  *time.Time `json:"-"`
	PasswordResetTokenHash *string    `gorm:"size:128;uniqueIndex" json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Verified reports whether the user has completed email verification.
// An unverified user must never receive a session.
func (u *User) Verified() bool {
	return u.EmailVerifiedAt != nil
}
