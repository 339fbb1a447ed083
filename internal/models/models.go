// Package models defines the data structures used throughout the application.
// It includes the catalog entities (games, packs, provider products), users and their
// wallet, orders, and the request and response payloads of the HTTP API.
package models

import (
	"encoding/json"
	"time"
)

// Provider identifies an upstream top-up provider.
type Provider string

const (
	ProviderSmileOne  Provider = "smile.one"
	ProviderYokcash   Provider = "yokcash"
	ProviderHopestore Provider = "hopestore"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{ProviderSmileOne, ProviderYokcash, ProviderHopestore}

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderSmileOne, ProviderYokcash, ProviderHopestore:
		return true
	}
	return false
}

// Role determines which price of a pack a viewer sees and is charged.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleReseller   Role = "reseller"
	RoleNormalUser Role = "normal_user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleReseller, RoleNormalUser:
		return true
	}
	return false
}

// PaymentMethod is the way a purchase is settled.
type PaymentMethod string

const (
	PaymentWallet PaymentMethod = "wallet"
	PaymentUPI    PaymentMethod = "upi"
	PaymentCard   PaymentMethod = "card"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentWallet, PaymentUPI, PaymentCard:
		return true
	}
	return false
}

// DefaultCategory is applied to games created without a category.
const DefaultCategory = "Mobile Games"

// Pack is a purchasable top-up unit attached to a game.
// PackID is unique within the game's pack list.
type Pack struct {
	PackID        string  `json:"packId"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	CostPrice     float64 `json:"costPrice"`
	RetailPrice   float64 `json:"retailPrice"`
	ResellerPrice float64 `json:"resellerPrice"`
	IsActive      *bool   `json:"isActive,omitempty"`
}

// Active reports whether the pack is offered on the storefront. Packs without an
// explicit flag are active.
func (p Pack) Active() bool {
	return p.IsActive == nil || *p.IsActive
}

// PackInput carries pack fields as entered on the admin form. Numeric fields are
// pointers so that a missing value can be told apart from zero.
type PackInput struct {
	PackID        string   `json:"packId"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Amount        *float64 `json:"amount"`
	RetailPrice   *float64 `json:"retailPrice"`
	ResellerPrice *float64 `json:"resellerPrice"`
	CostPrice     *float64 `json:"costPrice"`
	IsActive      *bool    `json:"isActive,omitempty"`
}

// NormalizedProduct is the common shape every provider catalog item is mapped into
// before it can be imported as a Pack.
type NormalizedProduct struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price float64         `json:"price"`
	Raw   json.RawMessage `json:"raw,omitempty"`
}

// ProviderServer is a game server offered by Smile.one for a game.
type ProviderServer struct {
	ServerID   string `json:"server_id"`
	ServerName string `json:"server_name"`
}

// ProviderBalance is the account balance held at one upstream provider.
type ProviderBalance struct {
	Provider Provider `json:"provider"`
	Balance  float64  `json:"balance"`
	Currency string   `json:"currency,omitempty"`
}

// Game is a storefront entry backed by a provider game.
type Game struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	APIProvider Provider  `json:"apiProvider"`
	APIGameID   string    `json:"apiGameId"`
	Region      string    `json:"region"`
	Category    string    `json:"category"`
	Packs       []Pack    `json:"packs"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// ActivePacks returns the packs currently offered on the storefront, in order.
func (g *Game) ActivePacks() []Pack {
	active := make([]Pack, 0, len(g.Packs))
	for _, pack := range g.Packs {
		if pack.Active() {
			active = append(active, pack)
		}
	}
	return active
}

// GameFilter narrows a game listing.
type GameFilter struct {
	Search      string
	Category    string
	APIProvider Provider
}

// PackOffer is a pack as shown to a customer, priced for the viewer's role.
type PackOffer struct {
	PackID      string  `json:"packId"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Price       float64 `json:"price"`
}

// GameCard is a game of the storefront listing.
type GameCard struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	APIProvider Provider `json:"apiProvider"`
	Region      string   `json:"region"`
	Category    string   `json:"category"`
	MinPrice    float64  `json:"minPrice"`
	MaxPrice    float64  `json:"maxPrice"`
}

// GameDetail is the storefront page of a game with its active packs.
type GameDetail struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Image         string      `json:"image"`
	APIProvider   Provider    `json:"apiProvider"`
	Region        string      `json:"region"`
	Category      string      `json:"category"`
	TakesServerID bool        `json:"takesServerId"`
	Packs         []PackOffer `json:"packs"`
}

// Player is the account a provider confirmed for a player ID.
type Player struct {
	Username string          `json:"username"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// User represents a storefront account.
type User struct {
	ID       int32   `json:"id"`
	Username string  `json:"username"`
	Password string  `json:"-"`
	Role     Role    `json:"role"`
	Balance  float64 `json:"balance"`
}

// OrderStatus is the settlement state of an order.
type OrderStatus string

const (
	OrderPaid    OrderStatus = "paid"
	OrderPending OrderStatus = "pending"
)

// Order is a completed purchase intent.
type Order struct {
	ID        string        `json:"id"`
	UserID    int32         `json:"userId"`
	GameID    string        `json:"gameId"`
	PackID    string        `json:"packId"`
	PlayerID  string        `json:"playerId"`
	ServerID  string        `json:"serverId,omitempty"`
	Price     float64       `json:"price"`
	Method    PaymentMethod `json:"method"`
	Status    OrderStatus   `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// WalletTransaction is one entry of a user's wallet history.
type WalletTransaction struct {
	Kind      string    `json:"kind"`
	Amount    float64   `json:"amount"`
	OrderID   string    `json:"orderId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// BalanceResponse carries a wallet balance.
type BalanceResponse struct {
	Balance float64 `json:"balance"`
}

// WalletInfo is the response payload for the /api/wallet endpoint.
type WalletInfo struct {
	Balance float64             `json:"balance"`
	History []WalletTransaction `json:"history"`
}

// AuthRequest represents the authentication request payload.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse contains the generated token upon successful authentication.
type AuthResponse struct {
	Token string `json:"token"`
}

// ErrorResponse represents a generic error response payload.
type ErrorResponse struct {
	Errors string `json:"errors"`
}

// DraftRequest opens an admin draft, optionally seeded from an existing game.
type DraftRequest struct {
	GameID string `json:"gameId,omitempty"`
	Game   *Game  `json:"game,omitempty"`
}

// ImportRequest selects a product of the loaded catalog.
type ImportRequest struct {
	ProductID string `json:"productId"`
}

// StartPurchaseRequest opens a purchase session for a game.
type StartPurchaseRequest struct {
	GameID string `json:"gameId"`
}

// ValidatePlayerRequest carries the player identity to confirm.
type ValidatePlayerRequest struct {
	UserID   string `json:"userId"`
	ServerID string `json:"serverId,omitempty"`
}

// SelectPackRequest picks a pack for the purchase.
type SelectPackRequest struct {
	PackID string `json:"packId"`
}

// PayRequest submits the purchase.
type PayRequest struct {
	Method PaymentMethod `json:"method"`
}

// AddMoneyRequest tops up the caller's wallet.
type AddMoneyRequest struct {
	Amount float64 `json:"amount"`
}

// RoleRequest changes a user's role.
type RoleRequest struct {
	Role Role `json:"role"`
}
