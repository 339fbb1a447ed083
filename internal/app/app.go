// Package app provides the core business logic for the top-up storefront.
// It handles user authentication, the game catalog, admin pack drafts, customer purchase
// sessions, wallets and user administration. It integrates the storage layer for
// persistence, the session store for short-lived state and the provider gateway for
// upstream calls.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"topup_store/internal/config"
	"topup_store/internal/models"
	"topup_store/internal/pkg/auth"
	"topup_store/internal/pkg/logger"
	"topup_store/internal/provider"
	"topup_store/internal/session"
	"topup_store/internal/storage"
)

// Predefined errors for invalid requests.
var (
	// ErrMissingUsernameOrPassword indicates that either the username or password is not provided.
	ErrMissingUsernameOrPassword = errors.New("app: missing username or password")
	// ErrNoPacks indicates a game without packs.
	ErrNoPacks = errors.New("app: at least one pack is required")
	// ErrPackIDMismatch indicates an attempt to change the id of a stored pack.
	ErrPackIDMismatch = errors.New("app: pack id cannot be changed")
	// ErrInvalidAmount indicates a wallet top-up that is not a positive amount.
	ErrInvalidAmount = errors.New("app: amount must be greater than zero")
	// ErrInvalidRole indicates a role that cannot be assigned.
	ErrInvalidRole = errors.New("app: role must be reseller or normal_user")
	// ErrAdminRole indicates an attempt to change the role of an admin.
	ErrAdminRole = errors.New("app: admin role cannot be changed")
	// ErrUnknownKind indicates an unsupported wallet history filter.
	ErrUnknownKind = errors.New("app: unknown transaction kind")
	// ErrForbidden indicates a session or draft owned by another user.
	ErrForbidden = errors.New("app: access denied")
)

// GameValidationError lists the game fields that are missing or invalid.
type GameValidationError struct {
	Missing []string
	Invalid []string
}

func (e *GameValidationError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("app: game %s", strings.Join(parts, "; "))
}

// App encapsulates the application logic and dependencies required to process requests.
type App struct {
	db       storage.Storage  // Database storage layer for persistent data operations.
	sessions session.Store    // Short-lived purchase sessions and admin drafts.
	gateway  provider.Gateway // Upstream provider gateway.
	profiles provider.Profiles
	log      *logger.Logger // Logger for logging application events and errors.
}

// NewApp creates and returns a new instance of App with the provided dependencies.
func NewApp(db storage.Storage, sessions session.Store, gateway provider.Gateway, profiles provider.Profiles, log *logger.Logger) *App {
	return &App{db: db, sessions: sessions, gateway: gateway, profiles: profiles, log: log}
}

// ProcessAuth handles user authentication by verifying credentials and generating a token.
// If the user does not exist, it creates a new user with an empty wallet. The configured
// admin username registers as an admin, everybody else as a normal user.
func (app *App) ProcessAuth(ctx context.Context, req models.AuthRequest) (string, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return "", ErrMissingUsernameOrPassword
	}

	user := &models.User{
		Username: req.Username,
		Password: req.Password,
	}

	user, err := app.db.CheckUser(ctx, user)
	if err != nil {
		return "", err
	}

	if user.ID == 0 {
		user.Role = models.RoleNormalUser
		if config.AdminUsername != "" && user.Username == config.AdminUsername {
			user.Role = models.RoleAdmin
		}
		user.Balance = 0
		user, err = app.db.CreateUser(ctx, user)
		if err != nil {
			return "", err
		}
	}

	return auth.GenerateToken(user.ID, user.Role)
}
