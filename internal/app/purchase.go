package app

import (
	"context"
	"errors"

	"topup_store/internal/models"
	"topup_store/internal/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PurchaseView is a purchase session as returned to the customer.
type PurchaseView struct {
	ID            string               `json:"id"`
	Step          workflow.Step        `json:"step"`
	Game          *models.GameDetail   `json:"game"`
	PlayerID      string               `json:"playerId,omitempty"`
	ServerID      string               `json:"serverId,omitempty"`
	Player        *models.Player       `json:"player,omitempty"`
	SelectedPack  *models.PackOffer    `json:"selectedPack,omitempty"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod,omitempty"`
	OrderID       string               `json:"orderId,omitempty"`
	CanPurchase   bool                 `json:"canPurchase"`
	Validating    bool                 `json:"validating"`
}

func (app *App) purchaseView(s *workflow.Session) *PurchaseView {
	view := &PurchaseView{
		ID:            s.ID,
		Step:          s.Step,
		Game:          app.detail(&s.Game, s.Role),
		PlayerID:      s.PlayerID,
		ServerID:      s.ServerID,
		Player:        s.ValidatedPlayer,
		PaymentMethod: s.PaymentMethod,
		OrderID:       s.OrderID,
		CanPurchase:   s.CanPurchase(),
		Validating:    s.Validating,
	}
	view.Game.TakesServerID = s.TakesServerID
	if s.SelectedPack != nil {
		selected := offer(*s.SelectedPack, s.Role)
		view.SelectedPack = &selected
	}
	return view
}

func (app *App) loadPurchase(ctx context.Context, userID int32, sessionID string) (*workflow.Session, error) {
	s, err := app.sessions.LoadPurchase(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, ErrForbidden
	}
	return s, nil
}

// updatePurchase loads a session, applies fn and stores the session unless fn fails.
func (app *App) updatePurchase(ctx context.Context, userID int32, sessionID string, fn func(s *workflow.Session) error) (*PurchaseView, error) {
	s, err := app.loadPurchase(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := app.sessions.SavePurchase(ctx, s); err != nil {
		return nil, err
	}
	return app.purchaseView(s), nil
}

// StartPurchase opens a purchase session for a game. The customer's current role is
// read from storage so that a role change applies to the next purchase.
func (app *App) StartPurchase(ctx context.Context, userID int32, gameID string) (*PurchaseView, error) {
	user, err := app.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	game, err := app.db.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	s := workflow.New(uuid.NewString(), user.ID, user.Role, *game, app.profiles.TakesServerID(game.APIProvider))
	if err := app.sessions.SavePurchase(ctx, s); err != nil {
		return nil, err
	}
	return app.purchaseView(s), nil
}

// GetPurchase returns a purchase session.
func (app *App) GetPurchase(ctx context.Context, userID int32, sessionID string) (*PurchaseView, error) {
	s, err := app.loadPurchase(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return app.purchaseView(s), nil
}

// ValidatePlayer asks the provider whether the player exists. The session is stored
// before the gateway call and reloaded after it, so an answer that arrives after a newer
// attempt or a reset is discarded with workflow.ErrStaleResponse.
func (app *App) ValidatePlayer(ctx context.Context, userID int32, sessionID string, req models.ValidatePlayerRequest) (*PurchaseView, error) {
	var ticket workflow.Ticket
	if _, err := app.updatePurchase(ctx, userID, sessionID, func(s *workflow.Session) error {
		var err error
		ticket, err = s.BeginValidate(req.UserID, req.ServerID)
		return err
	}); err != nil {
		return nil, err
	}

	result, callErr := app.gateway.ValidateUser(ctx, ticket.Request)
	if callErr != nil {
		app.log.Warn("player validation failed",
			zap.String("session", sessionID),
			zap.String("provider", string(ticket.Request.Provider)),
			zap.Error(callErr))
	}

	s, err := app.loadPurchase(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	outcome := s.CompleteValidate(ticket, result, callErr)
	if errors.Is(outcome, workflow.ErrStaleResponse) {
		app.log.Debug("stale validation response discarded", zap.String("session", sessionID), zap.Uint64("seq", ticket.Seq))
		return app.purchaseView(s), outcome
	}

	if err := app.sessions.SavePurchase(ctx, s); err != nil {
		return nil, err
	}
	return app.purchaseView(s), outcome
}

// SelectPack picks a pack for the purchase.
func (app *App) SelectPack(ctx context.Context, userID int32, sessionID, packID string) (*PurchaseView, error) {
	return app.updatePurchase(ctx, userID, sessionID, func(s *workflow.Session) error {
		return s.SelectPack(packID)
	})
}

// PurchaseSummary returns the review of a purchase.
func (app *App) PurchaseSummary(ctx context.Context, userID int32, sessionID string) (*workflow.Summary, error) {
	s, err := app.loadPurchase(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	summary, err := s.Summary()
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// Pay settles the purchase. A wallet payment debits the balance and records a paid order
// in one transaction; upi and card record a pending order settled outside the store.
// Only one payment of a session runs at a time, and the selected pack is checked
// against the stored game before anything is charged. A failed payment returns the
// session to review.
func (app *App) Pay(ctx context.Context, userID int32, sessionID string, method models.PaymentMethod) (*PurchaseView, error) {
	locked, err := app.sessions.LockPayment(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, workflow.ErrPaymentPending
	}
	defer func() {
		if err := app.sessions.UnlockPayment(context.WithoutCancel(ctx), sessionID); err != nil {
			app.log.Warn("payment lock not released", zap.String("session", sessionID), zap.Error(err))
		}
	}()

	s, err := app.loadPurchase(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	intent, err := s.BeginPurchase(method)
	if err != nil {
		return nil, err
	}

	game, err := app.db.GetGame(ctx, intent.GameID)
	if err != nil {
		return nil, err
	}
	if err := s.RefreshGame(*game); err != nil {
		app.log.Info("purchase returned to review", zap.String("session", sessionID), zap.String("packId", intent.Pack.PackID), zap.Error(err))
		if saveErr := app.sessions.SavePurchase(ctx, s); saveErr != nil {
			return nil, saveErr
		}
		return app.purchaseView(s), err
	}
	intent.Pack = *s.SelectedPack
	if err := app.sessions.SavePurchase(ctx, s); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:       uuid.NewString(),
		UserID:   intent.UserID,
		GameID:   intent.GameID,
		PackID:   intent.Pack.PackID,
		PlayerID: intent.PlayerID,
		ServerID: intent.ServerID,
		Price:    intent.Price,
		Method:   intent.Method,
		Status:   models.OrderPending,
	}

	var payErr error
	if intent.Method == models.PaymentWallet {
		payErr = app.db.PurchaseWithWallet(ctx, order)
	} else {
		payErr = app.db.CreateOrder(ctx, order)
	}

	s, err = app.loadPurchase(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	orderID := order.ID
	if payErr != nil {
		orderID = ""
		app.log.Warn("payment failed", zap.String("session", sessionID), zap.String("method", string(intent.Method)), zap.Error(payErr))
	} else {
		app.log.Info("order placed",
			zap.String("order", order.ID),
			zap.Int32("user", order.UserID),
			zap.String("packId", order.PackID),
			zap.Float64("price", order.Price),
			zap.String("status", string(order.Status)))
	}

	if err := s.CompletePurchase(orderID, payErr); errors.Is(err, workflow.ErrNoPendingPayment) {
		app.log.Warn("session reset during payment", zap.String("session", sessionID), zap.String("order", orderID))
		return app.purchaseView(s), payErr
	}
	if err := app.sessions.SavePurchase(ctx, s); err != nil {
		return nil, err
	}
	return app.purchaseView(s), payErr
}

// ResetPurchase starts a new purchase for the same game.
func (app *App) ResetPurchase(ctx context.Context, userID int32, sessionID string) (*PurchaseView, error) {
	return app.updatePurchase(ctx, userID, sessionID, func(s *workflow.Session) error {
		s.Reset()
		return nil
	})
}
