package app

import (
	"context"
	"math"

	"topup_store/internal/models"
	"topup_store/internal/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetWallet returns the user's balance and history. A non-empty kind ("deposit" or
// "purchase") narrows the history.
func (app *App) GetWallet(ctx context.Context, userID int32, kind string) (*models.WalletInfo, error) {
	if kind != "" && kind != storage.KindDeposit && kind != storage.KindPurchase {
		return nil, ErrUnknownKind
	}

	info, err := app.db.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	if kind == "" {
		return info, nil
	}
	history := make([]models.WalletTransaction, 0, len(info.History))
	for _, entry := range info.History {
		if entry.Kind == kind {
			history = append(history, entry)
		}
	}
	info.History = history
	return info, nil
}

// AddMoney credits the user's wallet. The amount is rounded to cents and must be
// positive.
func (app *App) AddMoney(ctx context.Context, userID int32, amount float64) (*models.BalanceResponse, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ErrInvalidAmount
	}
	amount = decimal.NewFromFloat(amount).Round(2).InexactFloat64()
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	balance, err := app.db.AddFunds(ctx, userID, amount)
	if err != nil {
		return nil, err
	}

	app.log.Info("wallet credited", zap.Int32("user", userID), zap.Float64("amount", amount))
	return &models.BalanceResponse{Balance: balance}, nil
}
