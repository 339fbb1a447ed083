package service

import (
	"context"
	"net/http"

	"topup_store/internal/app"
	"topup_store/internal/models"

	"github.com/go-chi/chi/v5"
)

func (handlers *handlers) writePurchase(res http.ResponseWriter, view *app.PurchaseView, err error) {
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, view)
}

// startPurchaseHandler opens a purchase session for the game in the request body.
func (handlers *handlers) startPurchaseHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := currentUser(res, req)
	if !ok {
		return
	}

	var startRequest models.StartPurchaseRequest
	if err := decodeBody(req, &startRequest, false); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := handlers.app.StartPurchase(ctx, userID, startRequest.GameID)
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusCreated, view)
}

func (handlers *handlers) getPurchaseHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := currentUser(res, req)
	if !ok {
		return
	}

	view, err := handlers.app.GetPurchase(ctx, userID, chi.URLParam(req, "id"))
	handlers.writePurchase(res, view, err)
}

// validatePlayerHandler confirms the player ID with the provider.
func (handlers *handlers) validatePlayerHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := currentUser(res, req)
	if !ok {
		return
	}

	var validateRequest models.ValidatePlayerRequest
	if err := decodeBody(req, &validateRequest, false); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := handlers.app.ValidatePlayer(ctx, userID, chi.URLParam(req, "id"), validateRequest)
	handlers.writePurchase(res, view, err)
}

func (handlers *handlers) selectPackHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := currentUser(res, req)
	if !ok {
		return
	}

	var selectRequest models.SelectPackRequest
	if err := decodeBody(req, &selectRequest, false); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := handlers.app.SelectPack(ctx, userID, chi.URLParam(req, "id"), selectRequest.PackID)
	handlers.writePurchase(res, view, err)
}

func (handlers *handlers) summaryHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := currentUser(res, req)
	if !ok {
		return
	}

	summary, err := handlers.app.PurchaseSummary(ctx, userID, chi.URLParam(req, "id"))
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, summary)
}

// payHandler settles the purchase with the payment method in the request body.
func (handlers *handlers) payHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := currentUser(res, req)
	if !ok {
		return
	}

	var payRequest models.PayRequest
	if err := decodeBody(req, &payRequest, false); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := handlers.app.Pay(ctx, userID, chi.URLParam(req, "id"), payRequest.Method)
	handlers.writePurchase(res, view, err)
}

func (handlers *handlers) resetPurchaseHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := currentUser(res, req)
	if !ok {
		return
	}

	view, err := handlers.app.ResetPurchase(ctx, userID, chi.URLParam(req, "id"))
	handlers.writePurchase(res, view, err)
}
