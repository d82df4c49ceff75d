package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/kv"
	"github.com/sandeepkv93/session-authority-service/internal/repository"
)

func newRedisClientForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return server, client
}

func newStoreForTest(t *testing.T) (*miniredis.Miniredis, *kv.Store) {
	t.Helper()
	server, client := newRedisClientForTest(t)
	return server, kv.NewStore(client, time.Second)
}

type memoryUserRepo struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*domain.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{nextID: 1, users: map[uint]*domain.User{}}
}

func (r *memoryUserRepo) FindByID(id uint) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memoryUserRepo) FindByEmail(email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memoryUserRepo) FindByRefreshTokenHash(hash string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.RefreshTokenHash != nil && *u.RefreshTokenHash == hash {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memoryUserRepo) FindByPasswordResetTokenHash(hash string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.PasswordResetTokenHash != nil && *u.PasswordResetTokenHash == hash {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memoryUserRepo) Create(user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	user.ID = r.nextID
	r.nextID++
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memoryUserRepo) UpdateCredentials(userID uint, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordResetTokenHash = nil
	u.PasswordResetExpiresAt = nil
	return nil
}

func (r *memoryUserRepo) SetRefreshToken(userID uint, hash *string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.RefreshTokenHash = hash
	u.RefreshTokenExpiresAt = expiresAt
	return nil
}

func (r *memoryUserRepo) SetPasswordResetToken(userID uint, hash *string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordResetTokenHash = hash
	u.PasswordResetExpiresAt = expiresAt
	return nil
}

func (r *memoryUserRepo) MarkEmailVerified(userID uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.EmailVerifiedAt = &at
	return nil
}

type memoryTokenRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*domain.VerificationToken
	users  *memoryUserRepo
}

func newMemoryTokenRepo(users *memoryUserRepo) *memoryTokenRepo {
	return &memoryTokenRepo{nextID: 1, rows: map[uint]*domain.VerificationToken{}, users: users}
}

func (r *memoryTokenRepo) Replace(token *domain.VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if row.UserID == token.UserID {
			delete(r.rows, id)
		}
	}
	token.ID = r.nextID
	r.nextID++
	copied := *token
	r.rows[token.ID] = &copied
	return nil
}

func (r *memoryTokenRepo) FindValid(userID uint, code string, now time.Time) (*domain.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == userID && row.Token == code && row.ExpiresAt.After(now) {
			copied := *row
			return &copied, nil
		}
	}
	return nil, repository.ErrVerificationTokenNotFound
}

func (r *memoryTokenRepo) Consume(tokenID, userID uint, verifiedAt time.Time) error {
	r.mu.Lock()
	row, ok := r.rows[tokenID]
	if !ok || row.UserID != userID {
		r.mu.Unlock()
		return repository.ErrVerificationTokenNotFound
	}
	delete(r.rows, tokenID)
	r.mu.Unlock()
	return r.users.MarkEmailVerified(userID, verifiedAt)
}

type recordingMailer struct {
	mu          sync.Mutex
	codes       []string
	resetTokens []string
	failNext    bool
}

func (m *recordingMailer) SendVerificationCode(to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errSendFailed
	}
	m.codes = append(m.codes, code)
	return nil
}

func (m *recordingMailer) SendPasswordReset(to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errSendFailed
	}
	m.resetTokens = append(m.resetTokens, token)
	return nil
}

func (m *recordingMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		t.Fatal("no verification code was sent")
	}
	return m.codes[len(m.codes)-1]
}

func (m *recordingMailer) lastResetToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resetTokens) == 0 {
		t.Fatal("no reset token was sent")
	}
	return m.resetTokens[len(m.resetTokens)-1]
}

var errSendFailed = errors.New("smtp send failed")
