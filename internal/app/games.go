package app

import (
	"context"
	"fmt"
	"strings"

	"topup_store/internal/models"
	"topup_store/internal/pricing"
	"topup_store/internal/registry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func packInput(pack models.Pack) models.PackInput {
	return models.PackInput{
		PackID:        pack.PackID,
		Name:          pack.Name,
		Description:   pack.Description,
		Amount:        &pack.Amount,
		RetailPrice:   &pack.RetailPrice,
		ResellerPrice: &pack.ResellerPrice,
		CostPrice:     &pack.CostPrice,
		IsActive:      pack.IsActive,
	}
}

func offer(pack models.Pack, role models.Role) models.PackOffer {
	return models.PackOffer{
		PackID:      pack.PackID,
		Name:        pack.Name,
		Description: pack.Description,
		Amount:      pack.Amount,
		Price:       pricing.DisplayPrice(pack, role),
	}
}

func (app *App) detail(game *models.Game, role models.Role) *models.GameDetail {
	active := game.ActivePacks()
	packs := make([]models.PackOffer, 0, len(active))
	for _, pack := range active {
		packs = append(packs, offer(pack, role))
	}

	return &models.GameDetail{
		ID:            game.ID,
		Name:          game.Name,
		Description:   game.Description,
		Image:         game.Image,
		APIProvider:   game.APIProvider,
		Region:        game.Region,
		Category:      game.Category,
		TakesServerID: app.profiles.TakesServerID(game.APIProvider),
		Packs:         packs,
	}
}

// prepareGame trims and validates the game fields and every pack, and applies the
// provider's fixed region and the default category.
func (app *App) prepareGame(game *models.Game) error {
	game.Name = strings.TrimSpace(game.Name)
	game.Description = strings.TrimSpace(game.Description)
	game.Image = strings.TrimSpace(game.Image)
	game.APIGameID = strings.TrimSpace(game.APIGameID)
	game.Region = strings.TrimSpace(game.Region)
	game.Category = strings.TrimSpace(game.Category)

	if region := app.profiles.FixedRegion(game.APIProvider); region != "" {
		game.Region = region
	}
	if game.Category == "" {
		game.Category = models.DefaultCategory
	}

	verr := &GameValidationError{}
	required := []struct {
		field string
		value string
	}{
		{"name", game.Name},
		{"description", game.Description},
		{"image", game.Image},
		{"apiProvider", string(game.APIProvider)},
		{"apiGameId", game.APIGameID},
		{"region", game.Region},
	}
	for _, r := range required {
		if r.value == "" {
			verr.Missing = append(verr.Missing, r.field)
		}
	}
	if game.APIProvider != "" && !game.APIProvider.Valid() {
		verr.Invalid = append(verr.Invalid, "apiProvider")
	}
	if len(verr.Missing) > 0 || len(verr.Invalid) > 0 {
		return verr
	}

	if len(game.Packs) == 0 {
		return ErrNoPacks
	}

	seen := make(map[string]struct{}, len(game.Packs))
	packs := make([]models.Pack, 0, len(game.Packs))
	for i, raw := range game.Packs {
		pack, err := registry.Validate(packInput(raw))
		if err != nil {
			return fmt.Errorf("pack %d: %w", i+1, err)
		}
		if _, ok := seen[pack.PackID]; ok {
			return &registry.DuplicatePackError{PackID: pack.PackID}
		}
		seen[pack.PackID] = struct{}{}

		if pack.ResellerPrice > pack.RetailPrice {
			app.log.Warn("reseller price above retail price",
				zap.String("game", game.Name),
				zap.String("packId", pack.PackID),
				zap.Float64("retailPrice", pack.RetailPrice),
				zap.Float64("resellerPrice", pack.ResellerPrice))
		}
		packs = append(packs, pack)
	}
	game.Packs = packs
	return nil
}

// ListGames returns the storefront cards of the games matching the filter.
func (app *App) ListGames(ctx context.Context, filter models.GameFilter) ([]models.GameCard, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Category = strings.TrimSpace(filter.Category)

	games, err := app.db.ListGames(ctx, filter)
	if err != nil {
		return nil, err
	}

	cards := make([]models.GameCard, 0, len(games))
	for _, game := range games {
		minPrice, maxPrice := pricing.PriceRange(game.Packs)
		cards = append(cards, models.GameCard{
			ID:          game.ID,
			Name:        game.Name,
			Description: game.Description,
			Image:       game.Image,
			APIProvider: game.APIProvider,
			Region:      game.Region,
			Category:    game.Category,
			MinPrice:    minPrice,
			MaxPrice:    maxPrice,
		})
	}
	return cards, nil
}

// GetGame returns the storefront page of a game priced for the viewer's role.
func (app *App) GetGame(ctx context.Context, gameID string, role models.Role) (*models.GameDetail, error) {
	game, err := app.db.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return app.detail(game, role), nil
}

// GetGameAdmin returns a game with every pack and its full pricing.
func (app *App) GetGameAdmin(ctx context.Context, gameID string) (*models.Game, error) {
	return app.db.GetGame(ctx, gameID)
}

// CreateGame validates and stores a new game.
func (app *App) CreateGame(ctx context.Context, game models.Game) (*models.Game, error) {
	if err := app.prepareGame(&game); err != nil {
		return nil, err
	}

	game.ID = uuid.NewString()
	if err := app.db.CreateGame(ctx, &game); err != nil {
		return nil, err
	}

	app.log.Info("game created", zap.String("id", game.ID), zap.String("name", game.Name), zap.Int("packs", len(game.Packs)))
	return &game, nil
}

// UpdateGame validates a game and overwrites the stored one, packs included.
func (app *App) UpdateGame(ctx context.Context, gameID string, game models.Game) (*models.Game, error) {
	if err := app.prepareGame(&game); err != nil {
		return nil, err
	}

	game.ID = gameID
	if err := app.db.UpdateGame(ctx, &game); err != nil {
		return nil, err
	}

	app.log.Info("game updated", zap.String("id", game.ID), zap.Int("packs", len(game.Packs)))
	return &game, nil
}

// DeleteGame removes a game.
func (app *App) DeleteGame(ctx context.Context, gameID string) error {
	return app.db.DeleteGame(ctx, gameID)
}

// UpdatePack overwrites one pack of a stored game. The pack id itself cannot change.
func (app *App) UpdatePack(ctx context.Context, gameID, packID string, input models.PackInput) (*models.Pack, error) {
	if strings.TrimSpace(input.PackID) == "" {
		input.PackID = packID
	}

	pack, err := registry.Validate(input)
	if err != nil {
		return nil, err
	}
	if pack.PackID != packID {
		return nil, ErrPackIDMismatch
	}

	if err := app.db.UpdatePack(ctx, gameID, pack); err != nil {
		return nil, err
	}
	return &pack, nil
}
