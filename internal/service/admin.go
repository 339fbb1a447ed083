package service

import (
	"context"
	"net/http"
	"strconv"

	"topup_store/internal/models"

	"github.com/go-chi/chi/v5"
)

func (handlers *handlers) listUsersHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	users, err := handlers.app.ListUsers(ctx)
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, users)
}

func (handlers *handlers) setUserRoleHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 32)
	if err != nil {
		writeErrorResponse(res, "invalid user id", http.StatusBadRequest)
		return
	}

	var roleRequest models.RoleRequest
	if err := decodeBody(req, &roleRequest, false); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := handlers.app.SetUserRole(ctx, int32(userID), roleRequest.Role)
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, user)
}

// providerBalancesHandler returns the balances held at the upstream providers.
func (handlers *handlers) providerBalancesHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	balances, err := handlers.app.ProviderBalances(ctx)
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, balances)
}
