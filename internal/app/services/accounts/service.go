// Package accounts implements user signup and login.
package accounts

import (
	"context"
	stderrors "errors"
	"regexp"
	"strings"
	"time"

	"github.com/corpulate/platform/internal/app/auth"
	"github.com/corpulate/platform/internal/app/domain/user"
	"github.com/corpulate/platform/internal/app/metrics"
	"github.com/corpulate/platform/internal/app/storage"
	"github.com/corpulate/platform/internal/errors"
	"github.com/corpulate/platform/internal/mailer"
	"github.com/corpulate/platform/pkg/logger"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 6

// Service manages user accounts and sessions.
type Service struct {
	store  storage.UserStore
	tokens *auth.TokenManager
	mail   mailer.Mailer
	log    *logger.Logger
}

// New constructs an account service.
func New(store storage.UserStore, tokens *auth.TokenManager, mail mailer.Mailer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	if mail == nil {
		mail = mailer.NewNoop(log)
	}
	return &Service{store: store, tokens: tokens, mail: mail, log: log}
}

// SignupInput carries the fields accepted at registration.
type SignupInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

// Session is an authenticated user plus their token.
type Session struct {
	User  user.User `json:"user"`
	Token string    `json:"token"`
}

// Signup validates the input, creates the account and returns a session.
// The welcome email is sent in the background; delivery failures never fail
// the signup.
func (s *Service) Signup(ctx context.Context, in SignupInput) (Session, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if in.Email == "" || in.Password == "" || in.FirstName == "" || in.LastName == "" {
		return Session{}, errors.BadRequest("Email, password, first name and last name are required")
	}
	if !emailPattern.MatchString(in.Email) {
		return Session{}, errors.BadRequest("Invalid email format")
	}
	if len(in.Password) < minPasswordLength {
		return Session{}, errors.BadRequest("Password must be at least 6 characters long")
	}

	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return Session{}, errors.Conflict("User with this email already exists")
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return Session{}, errors.Internal("failed to check email", err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return Session{}, errors.Internal("failed to hash password", err)
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Email:       in.Email,
		Password:    hash,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return Session{}, errors.Conflict("User with this email already exists")
		}
		return Session{}, errors.Internal("failed to create user", err)
	}

	token, err := s.tokens.Issue(created.ID, created.Email)
	if err != nil {
		return Session{}, errors.Internal("failed to issue token", err)
	}

	go s.sendWelcome(created)

	metrics.RecordSignup()
	s.log.WithField("user_id", created.ID).Info("user registered")
	return Session{User: created, Token: token}, nil
}

func (s *Service) sendWelcome(u user.User) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.mail.SendWelcome(ctx, u.Email, u.FirstName); err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("welcome email failed")
	}
}

// LoginInput carries the login credentials.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies the credentials and returns a session. Unknown emails and
// wrong passwords produce the same error so the endpoint does not reveal
// which accounts exist.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Email == "" || in.Password == "" {
		return Session{}, errors.BadRequest("Email and password are required")
	}

	invalid := errors.Unauthorized("Invalid email or password")

	u, err := s.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			metrics.RecordLogin(false)
			return Session{}, invalid
		}
		return Session{}, errors.Internal("failed to load user", err)
	}
	if !auth.CheckPassword(u.Password, in.Password) {
		metrics.RecordLogin(false)
		return Session{}, invalid
	}

	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, errors.Internal("failed to issue token", err)
	}

	metrics.RecordLogin(true)
	s.log.WithField("user_id", u.ID).Info("user logged in")
	return Session{User: u, Token: token}, nil
}

// Get loads a user by identifier.
func (s *Service) Get(ctx context.Context, id int64) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return user.User{}, errors.NotFound("User not found")
		}
		return user.User{}, errors.Internal("failed to load user", err)
	}
	return u, nil
}
