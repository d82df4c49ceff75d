package repository

import "errors"

var (
	ErrUserNotFound              = errors.New("user not found")
	ErrEmailTaken                = errors.New("email already registered")
	ErrVerificationTokenNotFound = errors.New("verification token not found")
)
