// Package service contains HTTP handler implementations for the top-up storefront API endpoints.
// It orchestrates request parsing, calls the underlying business logic in the app package,
// handles errors (including database-specific errors), and writes appropriate HTTP responses.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"topup_store/internal/app"
	"topup_store/internal/models"
	"topup_store/internal/pkg/auth"
	"topup_store/internal/pkg/logger"
	"topup_store/internal/provider"
	"topup_store/internal/registry"
	"topup_store/internal/session"
	"topup_store/internal/storage"
	"topup_store/internal/workflow"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const requestTimeout = 30 * time.Second

// handlers aggregates dependencies needed by HTTP handlers,
// including the application business logic and logger.
type handlers struct {
	app *app.App
	log *logger.Logger
}

// newHandlers initializes a new handlers instance with the provided app and logger dependencies.
func newHandlers(app *app.App, l *logger.Logger) *handlers {
	return &handlers{app: app, log: l}
}

// authHandler handles user authentication requests.
// It reads the request body, unmarshals it into an AuthRequest,
// invokes the authentication process, and returns a JSON response with a token.
func (handlers *handlers) authHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	var authRequest models.AuthRequest
	var authResponse models.AuthResponse

	if err := decodeBody(req, &authRequest, false); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	var pgError *pgconn.PgError
	var err error
	authResponse.Token, err = handlers.app.ProcessAuth(ctx, authRequest)
	if err != nil {
		if ok := errors.As(err, &pgError); ok && pgError.Code == pgerrcode.UniqueViolation {
			writeErrorResponse(res, "user with provided name already exists", http.StatusUnauthorized)
			return
		}

		if errors.Is(err, app.ErrMissingUsernameOrPassword) {
			writeErrorResponse(res, "missing username or password", http.StatusBadRequest)
			return
		}

		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			writeErrorResponse(res, "incorrect password", http.StatusUnauthorized)
			return
		}
		writeErrorResponse(res, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(res, http.StatusOK, authResponse)
}

// decodeBody reads a JSON request body into v. An empty body is accepted when optional is set.
func decodeBody(req *http.Request, v interface{}, optional bool) error {
	requestBody, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	if len(requestBody) == 0 && optional {
		return nil
	}
	return json.Unmarshal(requestBody, v)
}

// currentUser returns the authenticated user ID or answers 401.
func currentUser(res http.ResponseWriter, req *http.Request) (int32, bool) {
	userID, ok := auth.UserIDFromContext(req.Context())
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

// writeAppError converts an error of the app layer into an HTTP status and message.
func (handlers *handlers) writeAppError(res http.ResponseWriter, err error) {
	var (
		pgError      *pgconn.PgError
		gameErr      *app.GameValidationError
		packErr      *registry.ValidationError
		duplicateErr *registry.DuplicatePackError
		failure      *workflow.ValidationFailure
		networkErr   *provider.NetworkError
	)

	switch {
	case errors.As(err, &pgError) && pgError.Code == pgerrcode.CheckViolation:
		if pgError.ConstraintName == "users_balance_check" {
			writeErrorResponse(res, "insufficient funds to complete the purchase", http.StatusBadRequest)
			return
		}
		writeErrorResponse(res, "request violates a data constraint", http.StatusBadRequest)
	case errors.As(err, &pgError) && pgError.Code == pgerrcode.UniqueViolation:
		writeErrorResponse(res, "record already exists", http.StatusConflict)

	case errors.Is(err, storage.ErrNotFound), errors.Is(err, session.ErrNotFound):
		writeErrorResponse(res, "not found", http.StatusNotFound)
	case errors.Is(err, registry.ErrPackNotFound):
		writeErrorResponse(res, "pack not found", http.StatusNotFound)

	case errors.Is(err, app.ErrForbidden), errors.Is(err, app.ErrAdminRole):
		writeErrorResponse(res, err.Error(), http.StatusForbidden)

	case errors.As(err, &duplicateErr):
		writeErrorResponse(res, duplicateErr.Error(), http.StatusConflict)
	case errors.Is(err, workflow.ErrSessionDone),
		errors.Is(err, workflow.ErrPaymentPending),
		errors.Is(err, workflow.ErrStaleResponse),
		errors.Is(err, workflow.ErrNoPendingPayment),
		errors.Is(err, workflow.ErrPriceChanged):
		writeErrorResponse(res, err.Error(), http.StatusConflict)

	case errors.As(err, &failure):
		writeErrorResponse(res, failure.Error(), http.StatusBadRequest)
	case errors.As(err, &gameErr), errors.As(err, &packErr),
		errors.Is(err, app.ErrNoPacks),
		errors.Is(err, app.ErrPackIDMismatch),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidRole),
		errors.Is(err, app.ErrUnknownKind),
		errors.Is(err, registry.ErrUnknownProduct),
		errors.Is(err, registry.ErrIndexOutOfRange),
		errors.Is(err, workflow.ErrEmptyPlayerID),
		errors.Is(err, workflow.ErrPackUnavailable),
		errors.Is(err, workflow.ErrNotReady),
		errors.Is(err, workflow.ErrUnknownMethod):
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)

	case errors.As(err, &networkErr):
		writeErrorResponse(res, "provider gateway unavailable: "+networkErr.Error(), http.StatusBadGateway)

	default:
		handlers.log.Sugar().Errorf("Request failed: %s", err)
		writeErrorResponse(res, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(res http.ResponseWriter, statusCode int, v interface{}) {
	result, err := json.Marshal(v)
	if err != nil {
		writeErrorResponse(res, err.Error(), http.StatusInternalServerError)
		return
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(statusCode)
	res.Write(result)
}

func writeErrorResponse(res http.ResponseWriter, errorInfo string, statusCode int) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(statusCode)
	json.NewEncoder(res).Encode(models.ErrorResponse{Errors: errorInfo})
}
