package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"topup_store/internal/app"
	"topup_store/internal/models"

	"github.com/go-chi/chi/v5"
)

// draftHandler adapts a draft operation to an HTTP handler. The operation receives the
// admin ID and the draft ID from the URL.
func (handlers *handlers) draftHandler(op func(ctx context.Context, req *http.Request, adminID int32, draftID string) (*app.DraftView, error)) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
		defer cancel()

		adminID, ok := currentUser(res, req)
		if !ok {
			return
		}

		view, err := op(ctx, req, adminID, chi.URLParam(req, "id"))
		if err != nil {
			var bad *badRequest
			if errors.As(err, &bad) {
				writeErrorResponse(res, err.Error(), http.StatusBadRequest)
				return
			}
			handlers.writeAppError(res, err)
			return
		}
		writeJSON(res, http.StatusOK, view)
	}
}

// badRequest wraps body decoding failures of draft operations.
type badRequest struct{ err error }

func (e *badRequest) Error() string { return e.err.Error() }

func decodeDraftBody(req *http.Request, v interface{}, optional bool) error {
	if err := decodeBody(req, v, optional); err != nil {
		return &badRequest{err: err}
	}
	return nil
}

func (handlers *handlers) createDraftHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	adminID, ok := currentUser(res, req)
	if !ok {
		return
	}

	var draftRequest models.DraftRequest
	if err := decodeBody(req, &draftRequest, true); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := handlers.app.CreateDraft(ctx, adminID, draftRequest)
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusCreated, view)
}

func (handlers *handlers) getDraft(ctx context.Context, _ *http.Request, adminID int32, draftID string) (*app.DraftView, error) {
	return handlers.app.GetDraft(ctx, adminID, draftID)
}

// loadCatalog accepts an optional game form so the provider and game id can be changed
// before fetching.
func (handlers *handlers) loadCatalog(ctx context.Context, req *http.Request, adminID int32, draftID string) (*app.DraftView, error) {
	var form *models.Game
	if err := decodeDraftBody(req, &form, true); err != nil {
		return nil, err
	}
	return handlers.app.LoadDraftCatalog(ctx, adminID, draftID, form)
}

func (handlers *handlers) importPack(ctx context.Context, req *http.Request, adminID int32, draftID string) (*app.DraftView, error) {
	var importRequest models.ImportRequest
	if err := decodeDraftBody(req, &importRequest, false); err != nil {
		return nil, err
	}
	return handlers.app.ImportPack(ctx, adminID, draftID, importRequest.ProductID)
}

func (handlers *handlers) addManualPack(ctx context.Context, req *http.Request, adminID int32, draftID string) (*app.DraftView, error) {
	var input models.PackInput
	if err := decodeDraftBody(req, &input, false); err != nil {
		return nil, err
	}
	return handlers.app.AddManualPack(ctx, adminID, draftID, input)
}

func (handlers *handlers) beginEditPack(ctx context.Context, req *http.Request, adminID int32, draftID string) (*app.DraftView, error) {
	return handlers.app.BeginEditPack(ctx, adminID, draftID, chi.URLParam(req, "pack"))
}

func (handlers *handlers) cancelEditPack(ctx context.Context, _ *http.Request, adminID int32, draftID string) (*app.DraftView, error) {
	return handlers.app.CancelEditPack(ctx, adminID, draftID)
}

func (handlers *handlers) editPack(ctx context.Context, req *http.Request, adminID int32, draftID string) (*app.DraftView, error) {
	var input models.PackInput
	if err := decodeDraftBody(req, &input, false); err != nil {
		return nil, err
	}
	return handlers.app.EditPack(ctx, adminID, draftID, chi.URLParam(req, "pack"), input)
}

// removePack deletes the pack at the position given in the URL.
func (handlers *handlers) removePack(ctx context.Context, req *http.Request, adminID int32, draftID string) (*app.DraftView, error) {
	index, err := strconv.Atoi(chi.URLParam(req, "pack"))
	if err != nil {
		return nil, &badRequest{err: err}
	}
	return handlers.app.RemovePack(ctx, adminID, draftID, index)
}

func (handlers *handlers) commitDraftHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	adminID, ok := currentUser(res, req)
	if !ok {
		return
	}

	var form *models.Game
	if err := decodeBody(req, &form, true); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	game, err := handlers.app.CommitDraft(ctx, adminID, chi.URLParam(req, "id"), form)
	if err != nil {
		handlers.writeAppError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, game)
}

func (handlers *handlers) discardDraftHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	adminID, ok := currentUser(res, req)
	if !ok {
		return
	}

	if err := handlers.app.DiscardDraft(ctx, adminID, chi.URLParam(req, "id")); err != nil {
		handlers.writeAppError(res, err)
		return
	}
	res.WriteHeader(http.StatusNoContent)
}
