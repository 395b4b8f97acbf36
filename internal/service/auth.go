// Package service holds the business rules of the local forum API.
//
// The client in this repository talks to a real forum backend in production.
// For development, demos and end-to-end tests, cmd/stubserver serves the same
// HTTP surface from SQLite, and this package is its business layer:
//
//	handler (HTTP) → service (rules, ownership) → repository (SQLite)
//	              ↘ auth (JWT, bcrypt)
//
// The services never see an http.Request; they return apperror values and
// the handlers map those to status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/auth"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/repository"
)

// AuthService registers accounts, checks passwords and issues tokens.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuthService creates an AuthService that stores accounts in users.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, passwords *auth.PasswordService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		now:       time.Now,
	}
}

// Register creates an account. Emails are unique, case-insensitively.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (model.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if name == "" {
		return model.User{}, apperror.ValidationFailed("name", "name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.User{}, apperror.ValidationFailed("email", "invalid email format")
	}
	if password == "" {
		return model.User{}, apperror.ValidationFailed("password", "password is required")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return model.User{}, apperror.ValidationFailed("password", err.Error())
	}

	u := model.User{
		Name:      name,
		Email:     email,
		Role:      model.DefaultRole,
		CreatedAt: s.now().UTC(),
	}
	// A taken email comes back as apperror.Conflict.
	if err := s.users.CreateUser(ctx, &u, hash); err != nil {
		return model.User{}, err
	}

	s.logger.Info("user registered", slog.Int64("userID", u.ID))
	return u, nil
}

// Login checks the credentials and returns a signed token. Unknown emails
// and wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, hash, err := s.users.GetCredentials(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return "", apperror.Auth("Invalid credentials")
	}
	if err != nil {
		return "", fmt.Errorf("service/auth: looking up %q: %w", email, err)
	}
	if err := s.passwords.Verify(hash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return "", apperror.Auth("Invalid credentials")
		}
		return "", fmt.Errorf("service/auth: verifying password: %w", err)
	}

	token, err := s.tokens.Generate(u.ID)
	if err != nil {
		return "", fmt.Errorf("service/auth: generating token for user %d: %w", u.ID, err)
	}
	s.logger.Info("user logged in", slog.Int64("userID", u.ID))
	return token, nil
}

// User returns the account with the given ID.
func (s *AuthService) User(ctx context.Context, id int64) (model.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// UpdateProfile renames the user and, when given, changes their role.
func (s *AuthService) UpdateProfile(ctx context.Context, id int64, upd model.ProfileUpdate) (model.User, error) {
	name := strings.TrimSpace(upd.Name)
	if name == "" {
		return model.User{}, apperror.ValidationFailed("name", "name is required")
	}

	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	u.Name = name
	if role := strings.TrimSpace(upd.Role); role != "" {
		u.Role = role
	}
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}
