package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// User represents an authenticated principal returned to handlers.
type User struct {
	ID        int64
	Username  string
	CreatedAt time.Time
}

var (
	// ErrInvalidCredentials is returned when username/password is wrong.
	// It does not say which of the two was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmptyField is returned for a blank form field.
	ErrEmptyField = errors.New("empty field")
	// ErrTooShort is returned for a password under MinPasswordLength characters.
	ErrTooShort = errors.New("too short")
	// ErrTooLong is returned for a password bcrypt cannot hash without truncation.
	ErrTooLong = errors.New("too long")
	// ErrMismatch is returned when the confirmation differs from the password.
	ErrMismatch = errors.New("mismatch")
	// ErrDuplicateUsername is returned when the username is already registered,
	// whether found up front or rejected by the store's unique constraint.
	ErrDuplicateUsername = errors.New("duplicate username")
	// ErrUserNotFound is returned by repositories for an unknown username.
	ErrUserNotFound = errors.New("user not found")
	// ErrStoreUnavailable wraps connectivity failures of the credential or session store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Form field names shared by the flows and the templates.
const (
	FieldUsername        = "username"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
)

// FieldError is one failed check on a submitted form field.
type FieldError struct {
	Field   string
	Kind    error
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

func (e *FieldError) Unwrap() error { return e.Kind }

// FieldErrors maps a form field to its failure. A non-empty FieldErrors is
// returned as the error of a rejected registration.
type FieldErrors map[string]*FieldError

func (fe FieldErrors) add(field string, kind error, message string) {
	fe[field] = &FieldError{Field: field, Kind: kind, Message: message}
}

// Has reports whether field failed with kind.
func (fe FieldErrors) Has(field string, kind error) bool {
	e, ok := fe[field]
	return ok && errors.Is(e, kind)
}

// Messages returns field -> user-facing message for rendering.
func (fe FieldErrors) Messages() map[string]string {
	out := make(map[string]string, len(fe))
	for k, v := range fe {
		out[k] = v.Message
	}
	return out
}

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fe[k].Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AuthService defines the registration and authentication flows.
type AuthService interface {
	Register(ctx context.Context, form RegistrationForm) (User, error)
	Authenticate(ctx context.Context, username, password string) (User, error)
}
