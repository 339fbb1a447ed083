// Package storage provides primitives for connecting to and interacting with data storage systems.
// It defines the Storage interface along with a PostgreSQL implementation that manages user accounts,
// the game catalog with its packs, orders, and wallet balances and history.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"topup_store/internal/models"
	"topup_store/internal/pkg/logger"
	"topup_store/internal/pkg/security"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema.sql
var schema string

// ErrNotFound indicates that the requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

const (
	createUserQuery     = `INSERT INTO content.users (username, password_hash, role, balance) VALUES ($1, $2, $3, $4) RETURNING id;`
	checkUserQuery      = `SELECT id, password_hash, role, balance FROM content.users WHERE username = $1;`
	getUserQuery        = `SELECT id, username, role, balance FROM content.users WHERE id = $1;`
	listUsersQuery      = `SELECT id, username, role, balance FROM content.users ORDER BY id;`
	updateUserRoleQuery = `UPDATE content.users SET role = $1, updated_at = NOW() WHERE id = $2;`

	createGameQuery = `INSERT INTO content.games (id, name, description, image, api_provider, api_game_id, region, category) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at;`
	updateGameQuery = `UPDATE content.games SET name = $2, description = $3, image = $4, api_provider = $5, api_game_id = $6, region = $7, category = $8, updated_at = NOW() WHERE id = $1 RETURNING created_at, updated_at;`
	deleteGameQuery = `DELETE FROM content.games WHERE id = $1;`
	getGameQuery    = `SELECT id, name, description, image, api_provider, api_game_id, region, category, created_at, updated_at FROM content.games WHERE id = $1;`
	listGamesQuery  = `SELECT id, name, description, image, api_provider, api_game_id, region, category, created_at, updated_at FROM content.games
		WHERE ($1::text = '' OR name ILIKE '%' || $1::text || '%' OR description ILIKE '%' || $1::text || '%')
		AND ($2::text = '' OR category = $2::text)
		AND ($3::text = '' OR api_provider = $3::text)
		ORDER BY created_at DESC, name;`
	touchGameQuery = `UPDATE content.games SET updated_at = NOW() WHERE id = $1;`

	insertPackQuery  = `INSERT INTO content.packs (game_id, position, pack_id, name, description, amount, cost_price, retail_price, reseller_price, is_active) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`
	deletePacksQuery = `DELETE FROM content.packs WHERE game_id = $1;`
	getPacksQuery    = `SELECT pack_id, name, description, amount, cost_price, retail_price, reseller_price, is_active FROM content.packs WHERE game_id = $1 ORDER BY position;`
	updatePackQuery  = `UPDATE content.packs SET name = $3, description = $4, amount = $5, cost_price = $6, retail_price = $7, reseller_price = $8, is_active = $9 WHERE game_id = $1 AND pack_id = $2;`

	createOrderQuery       = `INSERT INTO content.orders (id, user_id, game_id, pack_id, player_id, server_id, price, method, status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at;`
	updateUserBalanceQuery = `UPDATE content.users SET balance = balance + $1, updated_at = NOW() WHERE id = $2 RETURNING balance;`
	walletEntryQuery       = `INSERT INTO content.wallet_transactions (user_id, kind, amount, order_id) VALUES ($1, $2, $3, $4);`
	getBalanceQuery        = `SELECT balance FROM content.users WHERE id = $1;`
	getWalletHistoryQuery  = `SELECT kind, amount, order_id, created_at FROM content.wallet_transactions WHERE user_id = $1 ORDER BY created_at DESC, id DESC;`
)

// Wallet transaction kinds.
const (
	KindDeposit  = "deposit"
	KindPurchase = "purchase"
)

// Storage defines the methods required for data storage operations.
type Storage interface {
	// Close closes the database connection.
	Close()

	// Authentication methods.
	CheckUser(ctx context.Context, user *models.User) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)

	// User administration methods.
	GetUser(ctx context.Context, userID int32) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUserRole(ctx context.Context, userID int32, role models.Role) error

	// Game catalog methods.
	CreateGame(ctx context.Context, game *models.Game) error
	UpdateGame(ctx context.Context, game *models.Game) error
	DeleteGame(ctx context.Context, gameID string) error
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
	ListGames(ctx context.Context, filter models.GameFilter) ([]models.Game, error)
	UpdatePack(ctx context.Context, gameID string, pack models.Pack) error

	// Order and wallet methods.
	PurchaseWithWallet(ctx context.Context, order *models.Order) error
	CreateOrder(ctx context.Context, order *models.Order) error
	AddFunds(ctx context.Context, userID int32, amount float64) (float64, error)
	GetWallet(ctx context.Context, userID int32) (*models.WalletInfo, error)
}

// PostgreSQL implements the Storage interface using a PostgreSQL database.
type PostgreSQL struct {
	db  *sql.DB        // Connection to the database.
	log *logger.Logger // Logger for recording events and errors.
}

// NewPostgreSQL creates a new PostgreSQL instance with the provided connection string and logger.
// It opens the connection and pings the database to ensure connectivity.
func NewPostgreSQL(configDBString string, l *logger.Logger) (*PostgreSQL, error) {
	db, err := sql.Open("pgx", configDBString)
	if err != nil {
		l.Sugar().Errorf("Failed to open a database: %s", err)
		return &PostgreSQL{db: db, log: l}, err
	}

	const defaultTimeout = 10 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		l.Sugar().Errorf("Database ping failed: %s", err)
		return &PostgreSQL{db: db, log: l}, err
	}

	return &PostgreSQL{db: db, log: l}, nil
}

// Migrate creates the schema objects that do not exist yet.
func (postgresql *PostgreSQL) Migrate(ctx context.Context) error {
	if _, err := postgresql.db.ExecContext(ctx, schema); err != nil {
		postgresql.log.Sugar().Errorf("Failed to apply the schema: %s", err)
		return err
	}
	return nil
}

// Close closes the database connection if it is open.
func (postgresql *PostgreSQL) Close() {
	if postgresql.db != nil {
		postgresql.db.Close()
	}
}

// CheckUser verifies the user's credentials by retrieving the user's ID, role, balance and
// encrypted password, then checking the provided password against the stored hash.
// An unknown username leaves user.ID at zero.
func (postgresql *PostgreSQL) CheckUser(ctx context.Context, user *models.User) (*models.User, error) {
	var encryptedPassword string
	var role string

	err := postgresql.db.QueryRowContext(ctx, checkUserQuery, user.Username).Scan(&user.ID, &encryptedPassword, &role, &user.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return user, nil
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query checkUserQuery: %s", err)
		return user, err
	}
	user.Role = models.Role(role)

	err = security.CheckPassword(encryptedPassword, user.Password)
	if err != nil {
		postgresql.log.Sugar().Errorf("Password check failed for %s: %s", user.Username, err)
		return user, err
	}

	return user, nil
}

// CreateUser registers a new user by hashing the password and inserting the user into the database.
func (postgresql *PostgreSQL) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	encryptedPassword, err := security.HashPassword(user.Password)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to hash a password: %s", err)
		return user, err
	}

	err = postgresql.db.QueryRowContext(ctx, createUserQuery, user.Username, encryptedPassword, string(user.Role), user.Balance).Scan(&user.ID)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query createUserQuery: %s", err)
		return user, err
	}
	return user, nil
}

func scanUser(row interface{ Scan(dest ...any) error }) (models.User, error) {
	var user models.User
	var role string
	if err := row.Scan(&user.ID, &user.Username, &role, &user.Balance); err != nil {
		return user, err
	}
	user.Role = models.Role(role)
	return user, nil
}

// GetUser retrieves a user by ID.
func (postgresql *PostgreSQL) GetUser(ctx context.Context, userID int32) (*models.User, error) {
	user, err := scanUser(postgresql.db.QueryRowContext(ctx, getUserQuery, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getUserQuery: %s", err)
		return nil, err
	}
	return &user, nil
}

// ListUsers returns every user ordered by ID.
func (postgresql *PostgreSQL) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := postgresql.db.QueryContext(ctx, listUsersQuery)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query listUsersQuery: %s", err)
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			postgresql.log.Sugar().Errorf("Failed to scan user information in ListUsers method: %s", err)
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		postgresql.log.Sugar().Errorf("The last error encountered by Rows.Scan in ListUsers method: %s", err)
		return users, err
	}
	return users, nil
}

// UpdateUserRole changes the role of a user.
func (postgresql *PostgreSQL) UpdateUserRole(ctx context.Context, userID int32, role models.Role) error {
	result, err := postgresql.db.ExecContext(ctx, updateUserRoleQuery, string(role), userID)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query updateUserRoleQuery: %s", err)
		return err
	}
	return postgresql.expectRows(result, "updateUserRoleQuery")
}

func (postgresql *PostgreSQL) expectRows(result sql.Result, query string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute RowsAffected in %s: %s", query, err)
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func nullBool(value *bool) sql.NullBool {
	if value == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *value, Valid: true}
}

// insertPacks writes the packs of a game in list order.
func (postgresql *PostgreSQL) insertPacks(ctx context.Context, tx *sql.Tx, gameID string, packs []models.Pack) error {
	for position, pack := range packs {
		_, err := tx.ExecContext(ctx, insertPackQuery, gameID, position, pack.PackID, pack.Name, pack.Description,
			pack.Amount, pack.CostPrice, pack.RetailPrice, pack.ResellerPrice, nullBool(pack.IsActive))
		if err != nil {
			postgresql.log.Sugar().Errorf("Failed to execute a query insertPackQuery: %s", err)
			return err
		}
	}
	return nil
}

// getPacks reads the packs of a game in list order.
func (postgresql *PostgreSQL) getPacks(ctx context.Context, tx *sql.Tx, gameID string) ([]models.Pack, error) {
	rows, err := tx.QueryContext(ctx, getPacksQuery, gameID)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getPacksQuery: %s", err)
		return nil, err
	}
	defer rows.Close()

	packs := make([]models.Pack, 0)
	for rows.Next() {
		var pack models.Pack
		var isActive sql.NullBool
		if err := rows.Scan(&pack.PackID, &pack.Name, &pack.Description, &pack.Amount,
			&pack.CostPrice, &pack.RetailPrice, &pack.ResellerPrice, &isActive); err != nil {
			postgresql.log.Sugar().Errorf("Failed to scan pack information in getPacks method: %s", err)
			return nil, err
		}
		if isActive.Valid {
			active := isActive.Bool
			pack.IsActive = &active
		}
		packs = append(packs, pack)
	}

	if err := rows.Err(); err != nil {
		postgresql.log.Sugar().Errorf("The last error encountered by Rows.Scan in getPacks method: %s", err)
		return packs, err
	}
	return packs, nil
}

func gameArgs(game *models.Game) []any {
	return []any{game.ID, game.Name, game.Description, game.Image, string(game.APIProvider), game.APIGameID, game.Region, game.Category}
}

// CreateGame inserts a game together with its packs within a transaction.
func (postgresql *PostgreSQL) CreateGame(ctx context.Context, game *models.Game) error {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, createGameQuery, gameArgs(game)...).Scan(&game.CreatedAt, &game.UpdatedAt)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query createGameQuery: %s", err)
		return err
	}

	if err = postgresql.insertPacks(ctx, tx, game.ID, game.Packs); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateGame overwrites a game and replaces its pack list within a transaction.
func (postgresql *PostgreSQL) UpdateGame(ctx context.Context, game *models.Game) error {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, updateGameQuery, gameArgs(game)...).Scan(&game.CreatedAt, &game.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query updateGameQuery: %s", err)
		return err
	}

	if _, err = tx.ExecContext(ctx, deletePacksQuery, game.ID); err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query deletePacksQuery: %s", err)
		return err
	}

	if err = postgresql.insertPacks(ctx, tx, game.ID, game.Packs); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteGame removes a game; its packs are removed by the foreign key cascade.
func (postgresql *PostgreSQL) DeleteGame(ctx context.Context, gameID string) error {
	result, err := postgresql.db.ExecContext(ctx, deleteGameQuery, gameID)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query deleteGameQuery: %s", err)
		return err
	}
	return postgresql.expectRows(result, "deleteGameQuery")
}

func scanGame(row interface{ Scan(dest ...any) error }) (models.Game, error) {
	var game models.Game
	var provider string
	err := row.Scan(&game.ID, &game.Name, &game.Description, &game.Image, &provider,
		&game.APIGameID, &game.Region, &game.Category, &game.CreatedAt, &game.UpdatedAt)
	game.APIProvider = models.Provider(provider)
	return game, err
}

// GetGame retrieves a game with its packs.
func (postgresql *PostgreSQL) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	tx, err := postgresql.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	game, err := scanGame(tx.QueryRowContext(ctx, getGameQuery, gameID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getGameQuery: %s", err)
		return nil, err
	}

	game.Packs, err = postgresql.getPacks(ctx, tx, game.ID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &game, nil
}

// ListGames returns the games matching the filter, newest first, with their packs.
// Search matches the name or the description, case-insensitively.
func (postgresql *PostgreSQL) ListGames(ctx context.Context, filter models.GameFilter) ([]models.Game, error) {
	tx, err := postgresql.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, listGamesQuery, filter.Search, filter.Category, string(filter.APIProvider))
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query listGamesQuery: %s", err)
		return nil, err
	}

	games := make([]models.Game, 0)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			rows.Close()
			postgresql.log.Sugar().Errorf("Failed to scan game information in ListGames method: %s", err)
			return nil, err
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		postgresql.log.Sugar().Errorf("The last error encountered by Rows.Scan in ListGames method: %s", err)
		return nil, err
	}
	rows.Close()

	for i := range games {
		if games[i].Packs, err = postgresql.getPacks(ctx, tx, games[i].ID); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return games, nil
}

// UpdatePack overwrites a single pack of a game, keeping its position.
func (postgresql *PostgreSQL) UpdatePack(ctx context.Context, gameID string, pack models.Pack) error {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, updatePackQuery, gameID, pack.PackID, pack.Name, pack.Description,
		pack.Amount, pack.CostPrice, pack.RetailPrice, pack.ResellerPrice, nullBool(pack.IsActive))
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query updatePackQuery: %s", err)
		return err
	}
	if err = postgresql.expectRows(result, "updatePackQuery"); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, touchGameQuery, gameID); err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query touchGameQuery: %s", err)
		return err
	}

	return tx.Commit()
}

func (postgresql *PostgreSQL) insertOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	err := tx.QueryRowContext(ctx, createOrderQuery, order.ID, order.UserID, order.GameID, order.PackID,
		order.PlayerID, order.ServerID, order.Price, string(order.Method), string(order.Status)).Scan(&order.CreatedAt)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query createOrderQuery: %s", err)
		return err
	}
	return nil
}

// updateBalance adds delta to the user's balance and returns the new balance. The
// users_balance_check constraint rejects a balance below zero.
func (postgresql *PostgreSQL) updateBalance(ctx context.Context, tx *sql.Tx, userID int32, delta float64) (float64, error) {
	var balance float64
	err := tx.QueryRowContext(ctx, updateUserBalanceQuery, delta, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query updateUserBalanceQuery: %s", err)
		return 0, err
	}
	return balance, nil
}

func (postgresql *PostgreSQL) walletEntry(ctx context.Context, tx *sql.Tx, userID int32, kind string, amount float64, orderID string) error {
	order := sql.NullString{String: orderID, Valid: orderID != ""}
	if _, err := tx.ExecContext(ctx, walletEntryQuery, userID, kind, amount, order); err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query walletEntryQuery: %s", err)
		return err
	}
	return nil
}

// PurchaseWithWallet debits the order price from the user's balance and records the paid
// order and the wallet entry within a transaction.
func (postgresql *PostgreSQL) PurchaseWithWallet(ctx context.Context, order *models.Order) error {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = postgresql.updateBalance(ctx, tx, order.UserID, -order.Price); err != nil {
		return err
	}

	order.Status = models.OrderPaid
	if err = postgresql.insertOrder(ctx, tx, order); err != nil {
		return err
	}

	if err = postgresql.walletEntry(ctx, tx, order.UserID, KindPurchase, -order.Price, order.ID); err != nil {
		return err
	}

	return tx.Commit()
}

// CreateOrder records an order that is settled outside the wallet.
func (postgresql *PostgreSQL) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err = postgresql.insertOrder(ctx, tx, order); err != nil {
		return err
	}

	return tx.Commit()
}

// AddFunds credits the user's balance, records a deposit and returns the new balance.
func (postgresql *PostgreSQL) AddFunds(ctx context.Context, userID int32, amount float64) (float64, error) {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	balance, err := postgresql.updateBalance(ctx, tx, userID, amount)
	if err != nil {
		return 0, err
	}

	if err = postgresql.walletEntry(ctx, tx, userID, KindDeposit, amount, ""); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}

// GetWallet returns the user's balance and wallet history, newest first.
func (postgresql *PostgreSQL) GetWallet(ctx context.Context, userID int32) (*models.WalletInfo, error) {
	info := &models.WalletInfo{}

	tx, err := postgresql.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return info, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, getBalanceQuery, userID).Scan(&info.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return info, ErrNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getBalanceQuery: %s", err)
		return info, err
	}

	rows, err := tx.QueryContext(ctx, getWalletHistoryQuery, userID)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getWalletHistoryQuery: %s", err)
		return info, err
	}
	defer rows.Close()

	const historyCapacity = 10
	info.History = make([]models.WalletTransaction, 0, historyCapacity)
	for rows.Next() {
		var entry models.WalletTransaction
		var orderID sql.NullString
		if err := rows.Scan(&entry.Kind, &entry.Amount, &orderID, &entry.CreatedAt); err != nil {
			postgresql.log.Sugar().Errorf("Failed to scan wallet history in GetWallet method: %s", err)
			return info, err
		}
		entry.OrderID = orderID.String
		info.History = append(info.History, entry)
	}

	if err := rows.Err(); err != nil {
		postgresql.log.Sugar().Errorf("The last error encountered by Rows.Scan in GetWallet method: %s", err)
		return info, err
	}

	if err = tx.Commit(); err != nil {
		return info, err
	}
	return info, nil
}
