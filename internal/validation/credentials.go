// Package validation содержит проверки учётных данных перед отправкой на сервер.
package validation

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
)

// MinPasswordLength - минимальная длина пароля.
const MinPasswordLength = 8

var (
	ErrEmptyEmail      = errors.New("Email không được để trống")
	ErrInvalidEmail    = errors.New("Email không hợp lệ")
	ErrEmptyPassword   = errors.New("Mật khẩu không được để trống")
	ErrShortPassword   = errors.New("Mật khẩu phải có ít nhất 8 ký tự")
	ErrNoLowercase     = errors.New("Mật khẩu phải có ít nhất một chữ thường")
	ErrNoUppercase     = errors.New("Mật khẩu phải có ít nhất một chữ hoa")
	ErrNoDigit         = errors.New("Mật khẩu phải có ít nhất một chữ số")
	ErrNoSpecialSymbol = errors.New("Mật khẩu phải có ít nhất một ký tự đặc biệt")
)

// Email проверяет, что строка - голый адрес вида user@domain.tld.
func Email(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmptyEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return ErrInvalidEmail
	}

	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return ErrInvalidEmail
	}
	return nil
}

// Password проверяет сложность пароля. Возвращается первое нарушенное правило.
func Password(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len([]rune(password)) < MinPasswordLength {
		return ErrShortPassword
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	switch {
	case !lower:
		return ErrNoLowercase
	case !upper:
		return ErrNoUppercase
	case !digit:
		return ErrNoDigit
	case !special:
		return ErrNoSpecialSymbol
	}
	return nil
}
