package utils

import (
	"errors"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// PasswordSymbols is the punctuation set a password must draw at least one
// character from.
const PasswordSymbols = "!@#$%^&*"

const (
	MinUsernameLength = 3
	MinPasswordLength = 8
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

var (
	ErrUsernameTooShort = errors.New("username must be at least 3 characters")
	ErrEmailInvalid     = errors.New("email address is not valid")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordUpper    = errors.New("password must contain an uppercase letter")
	ErrPasswordDigit    = errors.New("password must contain a digit")
	ErrPasswordSymbol   = errors.New("password must contain one of " + PasswordSymbols)
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateUsername requires at least three characters after trimming.
func ValidateUsername(username string) error {
	if utf8.RuneCountInString(strings.TrimSpace(username)) < MinUsernameLength {
		return ErrUsernameTooShort
	}
	return nil
}

// ValidateEmail checks the address shape.
func ValidateEmail(email string) error {
	if getValidator().Var(strings.TrimSpace(email), "required,email") != nil {
		return ErrEmailInvalid
	}
	return nil
}

// ValidatePassword requires eight characters including an uppercase letter,
// a digit and a symbol from PasswordSymbols, and at most MaxPasswordBytes
// bytes.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	var upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		}
	}
	switch {
	case !upper:
		return ErrPasswordUpper
	case !digit:
		return ErrPasswordDigit
	case !symbol:
		return ErrPasswordSymbol
	case len(password) > MaxPasswordBytes:
		return ErrPasswordTooLong
	}
	return nil
}

// ValidateRegistration runs the username, email and password checks in that
// order and returns the first failure.
func ValidateRegistration(username, email, password string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}
	return ValidatePassword(password)
}

// RequestValidator plugs struct tag validation into echo.Context.Validate.
type RequestValidator struct{}

func (RequestValidator) Validate(i interface{}) error {
	return getValidator().Struct(i)
}
