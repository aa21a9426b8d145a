// Package auth implements the user store and session tokens.
//
// Passwords are hashed with bcrypt. Sessions are HS256 JWTs whose subject is
// the user's email. Users listed in auth.admin_emails receive the admin
// permission. The scoring core never imports this package.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/repository"
)

const issuer = "fraudscore"

// PermissionAdmin allows changing the installed model and the review rules.
const PermissionAdmin = "admin"

var (
	ErrMissingCredentials = fmt.Errorf("%w: email and password are required", domain.ErrInvalidInput)
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrMissingSecret      = errors.New("jwt secret is required")
)

// Session is an authenticated caller.
type Session struct {
	Email       string
	Permissions []string
}

// Has reports whether the session carries permission.
func (s *Session) Has(permission string) bool {
	return slices.Contains(s.Permissions, permission)
}

type sessionClaims struct {
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Service implements domain.UserStore on top of a repository.
type Service struct {
	repo   domain.Repository
	secret []byte
	expiry time.Duration
	cost   int
	admins map[string]bool
	now    func() time.Time
}

var _ domain.UserStore = (*Service)(nil)

// New creates an auth service.
func New(repo domain.Repository, cfg domain.AuthConfig) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}

	expiry := cfg.TokenExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d out of range", domain.ErrInvalidInput, cost)
	}

	admins := make(map[string]bool, len(cfg.AdminEmails))
	for _, email := range cfg.AdminEmails {
		if email = normalizeEmail(email); email != "" {
			admins[email] = true
		}
	}

	return &Service{
		repo:   repo,
		secret: []byte(cfg.JWTSecret),
		expiry: expiry,
		cost:   cost,
		admins: admins,
		now:    time.Now,
	}, nil
}

// Create registers a new user.
func (s *Service) Create(ctx context.Context, email, password string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Verify checks a password. An unknown email and a wrong password are
// reported as different errors.
func (s *Service) Verify(ctx context.Context, email, password string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := s.repo.GetUser(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Delete removes the user's scoring history and then the credential.
func (s *Service) Delete(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrMissingCredentials
	}

	if _, err := s.repo.DeleteHistory(ctx, email); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}

	err := s.repo.DeleteUser(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	user, err := s.Verify(ctx, email, password)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.IssueToken(user.Email)
}

// IssueToken signs a session token for email.
func (s *Service) IssueToken(email string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.expiry)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if s.admins[normalizeEmail(email)] {
		claims.Permissions = []string{PermissionAdmin}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// ParseToken validates a session token and returns the session it carries.
func (s *Service) ParseToken(tokenString string) (*Session, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Session{Email: claims.Subject, Permissions: claims.Permissions}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
