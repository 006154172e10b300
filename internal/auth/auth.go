// Package auth handles accounts and login sessions for the lead board.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/madhatter5501/leadboard/internal/db"
)

var (
	// ErrInvalidCredentials is returned for a wrong email or password.
	ErrInvalidCredentials = errors.New("email ou senha inválidos")
	// ErrEmailTaken is returned when signing up with an existing email.
	ErrEmailTaken = errors.New("email já cadastrado")
	// ErrNoSession is returned when a token is missing, unknown or expired.
	ErrNoSession = errors.New("sessão expirada")
	// ErrWeakPassword is returned when a password is too short.
	ErrWeakPassword = errors.New("senha deve ter ao menos 6 caracteres")
	// ErrInvalidEmail is returned for a malformed email address.
	ErrInvalidEmail = errors.New("email inválido")
)

// User is an account that owns leads.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Session is an authenticated login.
type Session struct {
	Token     string    `json:"token" db:"token"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// Provider is the authentication collaborator used by the web layer.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	Session(ctx context.Context, token string) (*Session, error)
	CurrentUser(ctx context.Context, token string) (*User, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// Local keeps accounts in the lead database with bcrypt password hashes.
type Local struct {
	db         *db.DB
	logger     *slog.Logger
	sessionTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

var _ Provider = (*Local)(nil)

// NewLocal creates a provider over the given database.
func NewLocal(database *db.DB, sessionTTL time.Duration, logger *slog.Logger) *Local {
	if sessionTTL <= 0 {
		sessionTTL = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		db:         database,
		logger:     logger,
		sessionTTL: sessionTTL,
		resetTTL:   time.Hour,
		now:        time.Now,
	}
}

// SignUp creates an account and logs it in.
func (a *Local) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var exists int
	if err := a.db.GetContext(ctx, &exists, a.db.Rebind(`SELECT COUNT(*) FROM users WHERE email = ?`), email); err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists > 0 {
		return nil, ErrEmailTaken
	}

	id := uuid.New().String()
	_, err = a.db.ExecContext(ctx,
		a.db.Rebind(`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`),
		id, email, string(hash), a.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return a.newSession(ctx, id)
}

// SignIn checks the password and opens a session.
func (a *Local) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	var row struct {
		ID           string `db:"id"`
		PasswordHash string `db:"password_hash"`
	}
	err = a.db.GetContext(ctx, &row, a.db.Rebind(`SELECT id, password_hash FROM users WHERE email = ?`), email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return a.newSession(ctx, row.ID)
}

// SignOut ends a session. Unknown tokens are not an error.
func (a *Local) SignOut(ctx context.Context, token string) error {
	if _, err := a.db.ExecContext(ctx, a.db.Rebind(`DELETE FROM sessions WHERE token = ?`), token); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

// RequestPasswordReset issues a reset token. There is no mailer, so the
// token is logged; unknown emails succeed silently.
func (a *Local) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	var userID string
	err = a.db.GetContext(ctx, &userID, a.db.Rebind(`SELECT id FROM users WHERE email = ?`), email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	token, err := randomToken()
	if err != nil {
		return err
	}
	now := a.now().UTC()
	_, err = a.db.ExecContext(ctx,
		a.db.Rebind(`INSERT INTO password_resets (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`),
		token, userID, now, now.Add(a.resetTTL))
	if err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	a.logger.Info("Password reset requested", "email", email, "token", token)
	return nil
}

// Session returns a live session for the token.
func (a *Local) Session(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	var s Session
	err := a.db.GetContext(ctx, &s,
		a.db.Rebind(`SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?`), token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !a.now().Before(s.ExpiresAt) {
		return nil, ErrNoSession
	}
	return &s, nil
}

// CurrentUser returns the account behind a session token.
func (a *Local) CurrentUser(ctx context.Context, token string) (*User, error) {
	s, err := a.Session(ctx, token)
	if err != nil {
		return nil, err
	}
	var u User
	err = a.db.GetContext(ctx, &u, a.db.Rebind(`SELECT id, email, created_at FROM users WHERE id = ?`), s.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// PurgeExpired deletes expired sessions and reset tokens. It returns the
// number of sessions removed.
func (a *Local) PurgeExpired(ctx context.Context) (int64, error) {
	now := a.now().UTC()

	res, err := a.db.ExecContext(ctx, a.db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	if _, err := a.db.ExecContext(ctx, a.db.Rebind(`DELETE FROM password_resets WHERE expires_at <= ?`), now); err != nil {
		return 0, fmt.Errorf("failed to purge reset tokens: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

func (a *Local) newSession(ctx context.Context, userID string) (*Session, error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	now := a.now().UTC()
	s := &Session{Token: token, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(a.sessionTTL)}

	_, err = a.db.NamedExecContext(ctx, `
		INSERT INTO sessions (token, user_id, created_at, expires_at)
		VALUES (:token, :user_id, :created_at, :expires_at)
	`, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
