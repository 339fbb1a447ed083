package app

import (
	"context"

	"topup_store/internal/models"

	"go.uber.org/zap"
)

// ListUsers returns every storefront account.
func (app *App) ListUsers(ctx context.Context) ([]models.User, error) {
	return app.db.ListUsers(ctx)
}

// SetUserRole switches a user between reseller and normal user. Admin accounts keep
// their role.
func (app *App) SetUserRole(ctx context.Context, userID int32, role models.Role) (*models.User, error) {
	if role != models.RoleReseller && role != models.RoleNormalUser {
		return nil, ErrInvalidRole
	}

	user, err := app.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleAdmin {
		return nil, ErrAdminRole
	}

	if err := app.db.UpdateUserRole(ctx, userID, role); err != nil {
		return nil, err
	}

	app.log.Info("user role changed", zap.Int32("user", userID), zap.String("from", string(user.Role)), zap.String("to", string(role)))
	user.Role = role
	return user, nil
}

// ProviderBalances returns the account balance held at each upstream provider.
func (app *App) ProviderBalances(ctx context.Context) ([]models.ProviderBalance, error) {
	return app.gateway.Balances(ctx)
}
