package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/http/handler"
	"github.com/sandeepkv93/session-authority-service/internal/http/router"
	"github.com/sandeepkv93/session-authority-service/internal/kv"
	"github.com/sandeepkv93/session-authority-service/internal/repository"
	"github.com/sandeepkv93/session-authority-service/internal/security"
	"github.com/sandeepkv93/session-authority-service/internal/service"
	"github.com/sandeepkv93/session-authority-service/internal/session"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

type capturingMailer struct {
	mu          sync.Mutex
	codes       map[string]string
	resetTokens map[string]string
}

func newCapturingMailer() *capturingMailer {
	return &capturingMailer{codes: map[string]string{}, resetTokens: map[string]string{}}
}

func (m *capturingMailer) SendVerificationCode(to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[to] = code
	return nil
}

func (m *capturingMailer) SendPasswordReset(to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetTokens[to] = token
	return nil
}

func (m *capturingMailer) codeFor(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.codes[email]
	if !ok {
		t.Fatalf("no verification code captured for %s", email)
	}
	return code
}

type testEnv struct {
	baseURL  string
	client   *http.Client
	mailer   *capturingMailer
	users    repository.UserRepository
	registry *session.Registry
	redis    *miniredis.Miniredis
}

func newAuthTestServer(t *testing.T) *testEnv {
	t.Helper()

	redisServer := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	store := kv.NewStore(redisClient, time.Second)

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

	users := repository.NewUserRepository(db)
	verificationTokens := repository.NewVerificationTokenRepository(db)
	mail := newCapturingMailer()
	registry := session.NewRegistry(store)
	jwtMgr := security.NewJWTManager("session-authority", "session-authority-clients", strings.Repeat("s", 32))
	tokens := service.NewTokenService(jwtMgr, registry, users, service.TokenTTLs{
		Access:     15 * time.Minute,
		Session:    7 * time.Hour,
		RememberMe: 7 * 24 * time.Hour,
		Refresh:    30 * 24 * time.Hour,
	})
	guard := service.NewLoginThrottleGuard(store, service.ThrottlePolicy{
		MaxAttempts:   3,
		AttemptWindow: 10 * time.Minute,
		BanDuration:   time.Hour,
	})
	verification := service.NewVerificationCodeService(users, verificationTokens, store, mail, 10*time.Minute, time.Minute)
	reset := service.NewPasswordResetService(users, store, mail, time.Hour, time.Minute)
	auth := service.NewAuthService(users, guard, tokens, registry, verification)

	mux := router.New(router.Deps{
		Auth:          handler.NewAuthHandler(auth, tokens, 30*24*time.Hour, false),
		Verification:  handler.NewVerificationHandler(verification, reset),
		Sessions:      handler.NewSessionHandler(registry),
		Validator:     tokens,
		SecureCookies: false,
		Ready: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &testEnv{
		baseURL:  server.URL,
		client:   &http.Client{Jar: jar, Timeout: 10 * time.Second},
		mailer:   mail,
		users:    users,
		registry: registry,
		redis:    redisServer,
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func registerAndVerify(t *testing.T, env *testEnv, email, password string) {
	t.Helper()

	resp, out := doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/v1/auth/register", map[string]string{
		"name":     "Test User",
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusCreated || !out.Success {
		t.Fatalf("register: status=%d success=%v", resp.StatusCode, out.Success)
	}

	code := env.mailer.codeFor(t, email)
	resp, out = doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/v1/auth/verify-email", map[string]string{
		"email": email,
		"code":  code,
	})
	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("verify-email: status=%d success=%v", resp.StatusCode, out.Success)
	}
}

func login(t *testing.T, env *testEnv, email, password string) envelope {
	t.Helper()
	resp, out := doJSON(t, env.client, http.MethodPost, env.baseURL+"/api/v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("login: status=%d success=%v", resp.StatusCode, out.Success)
	}
	return out
}

func seedAdmin(t *testing.T, env *testEnv, email, password string) {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash admin password: %v", err)
	}
	now := time.Now()
	admin := &domain.User{
		Name:            "Admin",
		Email:           email,
		PasswordHash:    hash,
		Role:            domain.RoleAdmin,
		EmailVerifiedAt: &now,
	}
	if err := env.users.Create(admin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
}
