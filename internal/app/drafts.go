package app

import (
	"context"
	"errors"

	"topup_store/internal/models"
	"topup_store/internal/registry"
	"topup_store/internal/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DraftView is an admin draft as returned to the admin form.
type DraftView struct {
	ID       string                     `json:"id"`
	GameID   string                     `json:"gameId,omitempty"`
	Game     models.Game                `json:"game"`
	Provider models.Provider            `json:"provider,omitempty"`
	Catalog  []models.NormalizedProduct `json:"catalog"`
	Packs    []models.Pack              `json:"packs"`
	Editing  string                     `json:"editing,omitempty"`
	// Warning is set when the provider catalog could not be loaded.
	Warning string `json:"warning,omitempty"`
}

func draftView(d *session.Draft, reg *registry.Registry) *DraftView {
	state := reg.State()
	game := d.Game
	game.Packs = state.Packs
	return &DraftView{
		ID:       d.ID,
		GameID:   d.GameID,
		Game:     game,
		Provider: state.Provider,
		Catalog:  state.Catalog,
		Packs:    state.Packs,
		Editing:  state.Editing,
	}
}

// applyForm copies the form fields of a game into the draft. Packs are owned by the
// registry and are ignored.
func (app *App) applyForm(d *session.Draft, form *models.Game) {
	if form == nil {
		return
	}
	d.Game = *form
	d.Game.ID = d.GameID
	d.Game.Packs = nil
	if region := app.profiles.FixedRegion(d.Game.APIProvider); region != "" {
		d.Game.Region = region
	}
}

func (app *App) loadDraft(ctx context.Context, adminID int32, draftID string) (*session.Draft, *registry.Registry, error) {
	d, err := app.sessions.LoadDraft(ctx, draftID)
	if err != nil {
		return nil, nil, err
	}
	if d.AdminID != adminID {
		return nil, nil, ErrForbidden
	}
	return d, registry.Restore(d.Registry), nil
}

// updateDraft loads a draft, applies fn to its registry and stores the result. The
// draft is not stored when fn fails.
func (app *App) updateDraft(ctx context.Context, adminID int32, draftID string, fn func(d *session.Draft, reg *registry.Registry) error) (*DraftView, error) {
	d, reg, err := app.loadDraft(ctx, adminID, draftID)
	if err != nil {
		return nil, err
	}

	if err := fn(d, reg); err != nil {
		return nil, err
	}

	d.Registry = reg.State()
	if err := app.sessions.SaveDraft(ctx, d); err != nil {
		return nil, err
	}
	return draftView(d, reg), nil
}

// CreateDraft opens an admin draft. With a game ID the draft edits that game and starts
// from its stored packs; otherwise it starts empty, optionally with the given form.
func (app *App) CreateDraft(ctx context.Context, adminID int32, req models.DraftRequest) (*DraftView, error) {
	d := &session.Draft{ID: uuid.NewString(), AdminID: adminID}

	var packs []models.Pack
	if req.GameID != "" {
		game, err := app.db.GetGame(ctx, req.GameID)
		if err != nil {
			return nil, err
		}
		d.GameID = game.ID
		packs = game.Packs
		app.applyForm(d, game)
	}
	app.applyForm(d, req.Game)

	reg := registry.New(packs)
	d.Registry = reg.State()
	if err := app.sessions.SaveDraft(ctx, d); err != nil {
		return nil, err
	}
	return draftView(d, reg), nil
}

// GetDraft returns a draft.
func (app *App) GetDraft(ctx context.Context, adminID int32, draftID string) (*DraftView, error) {
	d, reg, err := app.loadDraft(ctx, adminID, draftID)
	if err != nil {
		return nil, err
	}
	return draftView(d, reg), nil
}

// LoadDraftCatalog fetches the catalog of the draft's provider and makes it importable.
// A gateway failure leaves an empty catalog and is reported as a warning, not an error,
// so the admin can keep entering packs by hand.
func (app *App) LoadDraftCatalog(ctx context.Context, adminID int32, draftID string, form *models.Game) (*DraftView, error) {
	var warning string
	view, err := app.updateDraft(ctx, adminID, draftID, func(d *session.Draft, reg *registry.Registry) error {
		app.applyForm(d, form)

		result, err := app.gateway.FetchCatalog(ctx, d.Game.APIProvider, d.Game.APIGameID)
		if err != nil {
			app.log.Warn("catalog unavailable",
				zap.String("provider", string(d.Game.APIProvider)),
				zap.String("apiGameId", d.Game.APIGameID),
				zap.Error(err))
			warning = "failed to load provider packs: " + err.Error()
		}

		products := []models.NormalizedProduct{}
		if result != nil {
			products = result.Products
		}
		reg.LoadCatalog(d.Game.APIProvider, products)
		return nil
	})
	if err != nil {
		return nil, err
	}
	view.Warning = warning
	return view, nil
}

// ImportPack adds a catalog product to the draft as a pack with derived prices.
func (app *App) ImportPack(ctx context.Context, adminID int32, draftID, productID string) (*DraftView, error) {
	return app.updateDraft(ctx, adminID, draftID, func(_ *session.Draft, reg *registry.Registry) error {
		_, err := reg.AddFromCatalog(productID)
		return err
	})
}

// AddManualPack adds a pack entered by hand.
func (app *App) AddManualPack(ctx context.Context, adminID int32, draftID string, input models.PackInput) (*DraftView, error) {
	return app.updateDraft(ctx, adminID, draftID, func(_ *session.Draft, reg *registry.Registry) error {
		_, err := reg.AddManual(input)
		return err
	})
}

// BeginEditPack marks a pack of the draft as being edited.
func (app *App) BeginEditPack(ctx context.Context, adminID int32, draftID, packID string) (*DraftView, error) {
	return app.updateDraft(ctx, adminID, draftID, func(_ *session.Draft, reg *registry.Registry) error {
		_, err := reg.BeginEdit(packID)
		return err
	})
}

// CancelEditPack drops the edit in progress.
func (app *App) CancelEditPack(ctx context.Context, adminID int32, draftID string) (*DraftView, error) {
	return app.updateDraft(ctx, adminID, draftID, func(_ *session.Draft, reg *registry.Registry) error {
		reg.CancelEdit()
		return nil
	})
}

// EditPack replaces a pack of the draft in place. Editing a pack that has been removed
// meanwhile is a no-op.
func (app *App) EditPack(ctx context.Context, adminID int32, draftID, packID string, input models.PackInput) (*DraftView, error) {
	return app.updateDraft(ctx, adminID, draftID, func(_ *session.Draft, reg *registry.Registry) error {
		_, err := reg.Edit(packID, input)
		if errors.Is(err, registry.ErrPackNotFound) {
			app.log.Debug("edit of a removed pack ignored", zap.String("draft", draftID), zap.String("packId", packID))
			return nil
		}
		return err
	})
}

// RemovePack deletes the pack at the given position of the draft.
func (app *App) RemovePack(ctx context.Context, adminID int32, draftID string, index int) (*DraftView, error) {
	return app.updateDraft(ctx, adminID, draftID, func(_ *session.Draft, reg *registry.Registry) error {
		_, err := reg.Remove(index)
		return err
	})
}

// CommitDraft saves the draft as a game, creating it or updating the game the draft
// was opened for, and discards the draft. On failure the draft is kept.
func (app *App) CommitDraft(ctx context.Context, adminID int32, draftID string, form *models.Game) (*models.Game, error) {
	d, reg, err := app.loadDraft(ctx, adminID, draftID)
	if err != nil {
		return nil, err
	}
	app.applyForm(d, form)

	game := d.Game
	game.Packs = reg.Packs()

	var saved *models.Game
	if d.GameID == "" {
		saved, err = app.CreateGame(ctx, game)
	} else {
		saved, err = app.UpdateGame(ctx, d.GameID, game)
	}
	if err != nil {
		return nil, err
	}

	if err := app.sessions.DeleteDraft(ctx, d.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
		app.log.Sugar().Errorf("Failed to discard committed draft %s: %s", d.ID, err)
	}
	return saved, nil
}

// DiscardDraft drops a draft without saving it.
func (app *App) DiscardDraft(ctx context.Context, adminID int32, draftID string) error {
	if _, _, err := app.loadDraft(ctx, adminID, draftID); err != nil {
		return err
	}
	return app.sessions.DeleteDraft(ctx, draftID)
}
