package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medreports/medreports/internal/platform/auth"
)

// MinPasswordLength is enforced when accounts are created.
const MinPasswordLength = 8

// Issuer signs access tokens for authenticated users.
type Issuer interface {
	Issue(subject, username string, roles []string) (string, time.Time, error)
}

type Service struct {
	users  Repository
	tokens Issuer
	cost   int
	logger zerolog.Logger
}

func NewService(users Repository, tokens Issuer, logger zerolog.Logger) *Service {
	return &Service{users: users, tokens: tokens, cost: bcrypt.DefaultCost, logger: logger}
}

// CreateUser hashes the password and stores a new account.
func (s *Service) CreateUser(ctx context.Context, username, password, fullName, role string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalid)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, MinPasswordLength)
	}
	if role == "" {
		role = auth.RoleStaff
	}
	if role != auth.RoleStaff && role != auth.RoleAdmin {
		return nil, fmt.Errorf("%w: role must be %q or %q", ErrInvalid, auth.RoleStaff, auth.RoleAdmin)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Username:     username,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the credentials and issues an access token. Unknown users and
// wrong passwords both return auth.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if errors.Is(err, ErrNotFound) {
		s.logger.Info().Str("username", req.Username).Msg("login rejected: unknown user")
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Info().Str("username", u.Username).Msg("login rejected: wrong password")
		return nil, auth.ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(u.ID.String(), u.Username, []string{u.Role})
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, ExpiresAt: exp, User: u}, nil
}
