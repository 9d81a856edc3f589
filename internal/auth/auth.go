// Package auth registers users, checks their credentials and issues the
// signed bearer tokens that identify them on every request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/records"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6
	// bcrypt ignores input past 72 bytes
	MaxPasswordLength = 72
	MaxNameLength     = 50
)

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", core.ErrUnauthorized)
	ErrEmptyName          = fmt.Errorf("%w: please add a name", core.ErrValidation)
	ErrNameTooLong        = fmt.Errorf("%w: name cannot be more than %d characters", core.ErrValidation, MaxNameLength)
	ErrInvalidEmail       = fmt.Errorf("%w: please add a valid email", core.ErrValidation)
	ErrWeakPassword       = fmt.Errorf("%w: password must be between %d and %d characters", core.ErrValidation, MinPasswordLength, MaxPasswordLength)
	ErrEmailTaken         = fmt.Errorf("%w: user already exists", core.ErrConflict)
)

type Service struct {
	users  records.UserStore
	tokens *TokenSigner
	cost   int
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(users records.UserStore, tokens *TokenSigner, opts ...Option) *Service {
	s := &Service{
		users:  users,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		logger: log.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentAuth)
	return s
}

// Session is a user together with a freshly issued token.
type Session struct {
	User  core.User
	Token string
}

// Register creates a user and signs them in.
func (s *Service) Register(ctx context.Context, name, email, password string) (Session, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	switch {
	case name == "":
		return Session{}, ErrEmptyName
	case utf8.RuneCountInString(name) > MaxNameLength:
		return Session{}, ErrNameTooLong
	case !validEmail(email):
		return Session{}, ErrInvalidEmail
	case len(password) < MinPasswordLength || len(password) > MaxPasswordLength:
		return Session{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	u := core.User{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return Session{}, ErrEmailTaken
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "User registered", log.FieldUserID, u.ID)
	return s.session(u)
}

// Login checks email and password. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, core.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "Failed login", log.FieldUserID, u.ID)
		return Session{}, ErrInvalidCredentials
	}
	return s.session(u)
}

// Me returns the profile of the authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (core.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, core.ErrUnauthorized
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// Authenticate resolves a bearer token into a user id.
func (s *Service) Authenticate(token string) (string, error) {
	return s.tokens.Verify(token)
}

func (s *Service) session(u core.User) (Session, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{User: u, Token: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@"):], ".")
}
