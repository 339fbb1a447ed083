package service

import (
	"context"
	"net/http"

	"topup_store/internal/models"
	"topup_store/internal/pkg/auth"

	"github.com/go-chi/chi/v5"
)

// listGamesHandler returns the storefront cards, filtered by the search, category and
// apiProvider query parameters.
func (handlers *handlers) listGamesHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	query := req.URL.Query()
	filter := models.GameFilter{
		Search:      query.Get("search"),
		Category:    query.Get("category"),
		APIProvider: models.Provider(query.Get("apiProvider")),
	}

	cards, err := handlers.app.ListGames(ctx, filter)
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, cards)
}

// getGameHandler returns a game page, priced for the caller's role when a token is sent.
func (handlers *handlers) getGameHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	role, ok := auth.RoleFromContext(req.Context())
	if !ok {
		role = models.RoleNormalUser
	}

	game, err := handlers.app.GetGame(ctx, chi.URLParam(req, "id"), role)
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, game)
}

func (handlers *handlers) adminGetGameHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	game, err := handlers.app.GetGameAdmin(ctx, chi.URLParam(req, "id"))
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, game)
}

func (handlers *handlers) createGameHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	var game models.Game
	if err := decodeBody(req, &game, false); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := handlers.app.CreateGame(ctx, game)
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusCreated, created)
}

func (handlers *handlers) updateGameHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	var game models.Game
	if err := decodeBody(req, &game, false); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := handlers.app.UpdateGame(ctx, chi.URLParam(req, "id"), game)
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, updated)
}

func (handlers *handlers) deleteGameHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	if err := handlers.app.DeleteGame(ctx, chi.URLParam(req, "id")); err != nil {
		handlers.writeAppError(res, err)
		return
	}
	res.WriteHeader(http.StatusNoContent)
}

// updatePackHandler overwrites one pack of a stored game.
func (handlers *handlers) updatePackHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	var input models.PackInput
	if err := decodeBody(req, &input, false); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	pack, err := handlers.app.UpdatePack(ctx, chi.URLParam(req, "id"), chi.URLParam(req, "packId"), input)
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, pack)
}
