package service

import (
	"context"
	"net/http"

	"topup_store/internal/models"
)

// walletHandler returns the caller's balance and history, optionally narrowed by the
// type query parameter.
func (handlers *handlers) walletHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := currentUser(res, req)
	if !ok {
		return
	}

	info, err := handlers.app.GetWallet(ctx, userID, req.URL.Query().Get("type"))
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, info)
}

func (handlers *handlers) addMoneyHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := currentUser(res, req)
	if !ok {
		return
	}

	var addMoneyRequest models.AddMoneyRequest
	if err := decodeBody(req, &addMoneyRequest, false); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	balance, err := handlers.app.AddMoney(ctx, userID, addMoneyRequest.Amount)
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, balance)
}
