package service

import (
	"context"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid login or password")

// AuthService checks the single operator account configured at startup.
type AuthService struct {
	login        string
	passwordHash []byte
}

func NewAuthService(login, passwordHash string) *AuthService {
	return &AuthService{login: login, passwordHash: []byte(passwordHash)}
}

func (s *AuthService) Authenticate(_ context.Context, login, password string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(login), []byte(s.login)) != 1 {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.login, nil
}

// HashPassword produces a value for OPERATOR_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
