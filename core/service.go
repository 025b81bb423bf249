package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// RegistrationForm is the sign-up submission.
type RegistrationForm struct {
	Username        string `form:"username"`
	Password        string `form:"password"`
	ConfirmPassword string `form:"confirm_password"`
}

// LoginForm is the login submission.
type LoginForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

// RepositoryAuthService implements AuthService over a UserRepository and bcrypt.
type RepositoryAuthService struct {
	users   UserRepository
	cost    int
	timeout time.Duration
	dummy   []byte
}

// NewRepositoryAuthService hashes new passwords at cost and bounds each
// store round trip by timeout.
func NewRepositoryAuthService(users UserRepository, cost int, timeout time.Duration) (*RepositoryAuthService, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("onephoto-unknown-user"), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &RepositoryAuthService{users: users, cost: cost, timeout: timeout, dummy: dummy}, nil
}

// Register validates form and stores the new credential. Validation
// failures are returned together as FieldErrors; the username is stored trimmed.
func (s *RepositoryAuthService) Register(ctx context.Context, form RegistrationForm) (User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	errs := FieldErrors{}

	username := strings.TrimSpace(form.Username)
	if username == "" {
		errs.add(FieldUsername, ErrEmptyField, "Please enter a username.")
	} else {
		// fast path for feedback; Create below decides
		_, err := s.users.FindByUsername(ctx, username)
		switch {
		case err == nil:
			errs.add(FieldUsername, ErrDuplicateUsername, "This username is already taken.")
		case errors.Is(err, ErrUserNotFound):
		default:
			return User{}, storeUnavailable("lookup username", err)
		}
	}

	password := strings.TrimSpace(form.Password)
	switch {
	case password == "":
		errs.add(FieldPassword, ErrEmptyField, "Please enter a password.")
	case utf8.RuneCountInString(password) < MinPasswordLength:
		errs.add(FieldPassword, ErrTooShort, fmt.Sprintf("Password must have at least %d characters.", MinPasswordLength))
	case len(password) > MaxPasswordBytes:
		errs.add(FieldPassword, ErrTooLong, fmt.Sprintf("Password must be at most %d bytes.", MaxPasswordBytes))
	}

	confirm := strings.TrimSpace(form.ConfirmPassword)
	if confirm == "" {
		errs.add(FieldConfirmPassword, ErrEmptyField, "Please confirm password.")
	} else if _, bad := errs[FieldPassword]; !bad && password != confirm {
		errs.add(FieldConfirmPassword, ErrMismatch, "Password did not match.")
	}

	if len(errs) > 0 {
		return User{}, errs
	}

	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return User{}, err
	}

	id, err := s.users.Create(ctx, username, hash)
	if err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			errs.add(FieldUsername, ErrDuplicateUsername, "This username is already taken.")
			return User{}, errs
		}
		return User{}, storeUnavailable("create user", err)
	}
	return User{ID: id, Username: username, CreatedAt: time.Now().UTC()}, nil
}

// Authenticate checks username/password against the stored hash. Unknown
// users and wrong passwords both yield ErrInvalidCredentials.
func (s *RepositoryAuthService) Authenticate(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// bcrypt ignores bytes past the limit; such input never matches
	if len(password) > MaxPasswordBytes {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password[:MaxPasswordBytes]))
		return User{}, ErrInvalidCredentials
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
			return User{}, ErrInvalidCredentials
		}
		return User{}, storeUnavailable("lookup username", err)
	}

	ok, err := VerifyPassword(u.PasswordHash, password)
	if err != nil {
		logrus.WithError(err).WithField("user_id", u.ID).Warn("stored password hash is unreadable")
		return User{}, ErrInvalidCredentials
	}
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	return User{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}, nil
}

func (s *RepositoryAuthService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
