package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultMaxAttempts = 5
	defaultLockWindow  = 15 * time.Minute

	minPasswordLength = 8
	maxPasswordLength = 72
	maxFullNameLength = 255
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{3,50}$`)

// UserStore is the persistence the first-party auth flows need.
type UserStore interface {
	CreateUser(ctx context.Context, input NewUser) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	GetLoginAttempt(ctx context.Context, username string) (LoginAttempt, error)
	RegisterFailedAttempt(ctx context.Context, username string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error)
	ResetLoginAttempt(ctx context.Context, username string) error
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName *string
}

type Service struct {
	store        UserStore
	issuer       *TokenIssuer
	maxAttempts  int
	lockDuration time.Duration
	hashCost     int
	now          func() time.Time
}

func NewService(store UserStore, issuer *TokenIssuer) *Service {
	return &Service{
		store:        store,
		issuer:       issuer,
		maxAttempts:  defaultMaxAttempts,
		lockDuration: defaultLockWindow,
		hashCost:     bcrypt.DefaultCost,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithSecurityConfig(maxAttempts int, lockDuration time.Duration) *Service {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
	return s
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (AuthResponse, error) {
	username := normalizeUsername(input.Username)
	if !usernameRegex.MatchString(username) {
		return AuthResponse{}, ErrInvalidUsername
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if !validEmail(email) {
		return AuthResponse{}, ErrInvalidEmail
	}

	if len(input.Password) < minPasswordLength || len(input.Password) > maxPasswordLength {
		return AuthResponse{}, ErrInvalidPassword
	}

	var fullName *string
	if input.FullName != nil {
		trimmed := strings.TrimSpace(*input.FullName)
		if utf8.RuneCountInString(trimmed) > maxFullNameLength {
			return AuthResponse{}, ErrInvalidFullName
		}
		if trimmed != "" {
			fullName = &trimmed
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
	})
	if err != nil {
		return AuthResponse{}, err
	}

	return s.issuePair(user)
}

func (s *Service) Login(ctx context.Context, username, password string) (AuthResponse, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return AuthResponse{}, ErrInvalidCredentials
	}

	now := s.now()
	attempt, err := s.store.GetLoginAttempt(ctx, username)
	if err != nil {
		return AuthResponse{}, err
	}
	if attempt.LockedUntil != nil && now.Before(*attempt.LockedUntil) {
		return AuthResponse{}, ErrLoginLocked{Until: *attempt.LockedUntil}
	}

	user, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResponse{}, s.failLogin(ctx, username, now)
		}
		return AuthResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return AuthResponse{}, s.failLogin(ctx, username, now)
	}

	if err := s.store.ResetLoginAttempt(ctx, username); err != nil {
		return AuthResponse{}, err
	}

	return s.issuePair(user)
}

func (s *Service) failLogin(ctx context.Context, username string, now time.Time) error {
	lockedUntil, err := s.store.RegisterFailedAttempt(ctx, username, s.maxAttempts, s.lockDuration, now)
	if err != nil {
		return err
	}
	if lockedUntil != nil {
		return ErrLoginLocked{Until: *lockedUntil}
	}
	return ErrInvalidCredentials
}

// Refresh exchanges a refresh-kind token for a new pair. The user is
// reloaded so a deleted account cannot keep refreshing.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResponse, error) {
	claims, err := s.issuer.VerifyKind(strings.TrimSpace(refreshToken), TokenKindRefresh)
	if err != nil {
		return AuthResponse{}, err
	}

	user, err := s.store.GetByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResponse{}, ErrInvalidToken
		}
		return AuthResponse{}, err
	}

	return s.issuePair(user)
}

func (s *Service) Me(ctx context.Context, userID int64) (UserResponse, error) {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return UserResponse{}, err
	}
	return user.Response(), nil
}

func (s *Service) issuePair(user User) (AuthResponse, error) {
	access, _, err := s.issuer.IssueAccess(user.ID, user.Username)
	if err != nil {
		return AuthResponse{}, err
	}
	refresh, _, err := s.issuer.IssueRefresh(user.ID, user.Username)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
		User:         user.Response(),
	}, nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validEmail(email string) bool {
	if email == "" || len(email) > 255 {
		return false
	}
	address, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return address.Address == email && strings.Contains(email[strings.LastIndex(email, "@")+1:], ".")
}
