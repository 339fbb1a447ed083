// Package workflow drives a storefront purchase through its steps:
// validate the player ID, select a pack, review, pay, done.
//
// A Session holds no connections. Calls to the validation and payment collaborators
// happen outside of it: BeginValidate hands out a Ticket, and the response is applied
// with CompleteValidate only if no newer validation was started since. BeginPurchase
// and CompletePurchase bracket a payment the same way.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"topup_store/internal/models"
	"topup_store/internal/pricing"
)

var (
	// ErrEmptyPlayerID is returned when validation is requested without a player ID.
	ErrEmptyPlayerID = errors.New("workflow: player id is required")
	// ErrStaleResponse is returned when a validation response arrives after a newer
	// validation was started. The response is discarded.
	ErrStaleResponse = errors.New("workflow: stale validation response")
	// ErrPackUnavailable is returned when the pack is not an active pack of the game.
	ErrPackUnavailable = errors.New("workflow: pack is not available")
	// ErrNotReady is returned when the player is not validated or no pack is selected.
	ErrNotReady = errors.New("workflow: validate the player and select a pack first")
	// ErrUnknownMethod is returned for unsupported payment methods.
	ErrUnknownMethod = errors.New("workflow: unsupported payment method")
	// ErrSessionDone is returned for any change after the purchase completed.
	ErrSessionDone = errors.New("workflow: purchase already completed")
	// ErrPaymentPending is returned while a payment is being processed.
	ErrPaymentPending = errors.New("workflow: payment in progress")
	// ErrNoPendingPayment is returned when completing a payment that was never started.
	ErrNoPendingPayment = errors.New("workflow: no payment in progress")
	// ErrPriceChanged is returned when the selected pack was repriced after it was chosen.
	ErrPriceChanged = errors.New("workflow: pack price has changed, review the purchase again")
)

// ValidationFailure is returned when the provider rejects the player ID.
type ValidationFailure struct {
	Message string
}

func (e *ValidationFailure) Error() string {
	if e.Message == "" {
		return "workflow: user validation failed"
	}
	return "workflow: user validation failed: " + e.Message
}

// Step is a state of the purchase workflow.
type Step int

const (
	StepValidate Step = iota
	StepSelectPack
	StepReview
	StepPay
	StepDone
)

var stepNames = [...]string{"Validate", "SelectPack", "Review", "Pay", "Done"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Step) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stepNames) {
		return nil, fmt.Errorf("workflow: unknown step %d", int(s))
	}
	return []byte(stepNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Step) UnmarshalText(text []byte) error {
	for i, name := range stepNames {
		if name == string(text) {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("workflow: unknown step %q", text)
}

// ValidateRequest is sent to the player validation collaborator.
type ValidateRequest struct {
	GameID   string          `json:"gameId"`
	Provider models.Provider `json:"provider"`
	UserID   string          `json:"userId"`
	ServerID string          `json:"serverId,omitempty"`
}

// ValidateResult is the answer of the player validation collaborator.
type ValidateResult struct {
	Valid   bool
	Message string
	Player  models.Player
}

// Ticket identifies one validation attempt.
type Ticket struct {
	Seq     uint64          `json:"seq"`
	Request ValidateRequest `json:"request"`
}

// Intent is a purchase ready to be settled.
type Intent struct {
	SessionID string
	UserID    int32
	GameID    string
	Pack      models.Pack
	PlayerID  string
	ServerID  string
	Method    models.PaymentMethod
	Price     float64
}

// Summary is what the customer reviews before paying.
type Summary struct {
	GameID     string      `json:"gameId"`
	GameName   string      `json:"gameName"`
	PlayerID   string      `json:"playerId"`
	ServerID   string      `json:"serverId,omitempty"`
	Username   string      `json:"username"`
	Pack       models.Pack `json:"-"`
	PackName   string      `json:"packName"`
	Amount     float64     `json:"amount"`
	Role       models.Role `json:"role"`
	TotalPrice float64     `json:"totalPrice"`
}

// Session is the state of one storefront purchase. It is not safe for concurrent use.
type Session struct {
	ID            string      `json:"id"`
	UserID        int32       `json:"userId"`
	Role          models.Role `json:"role"`
	Game          models.Game `json:"game"`
	TakesServerID bool        `json:"takesServerId"`

	PlayerID        string               `json:"playerId"`
	ServerID        string               `json:"serverId,omitempty"`
	ValidatedPlayer *models.Player       `json:"validatedPlayer"`
	SelectedPack    *models.Pack         `json:"selectedPack"`
	PaymentMethod   models.PaymentMethod `json:"paymentMethod,omitempty"`
	Step            Step                 `json:"step"`
	OrderID         string               `json:"orderId,omitempty"`

	// ValidationSeq is bumped by every validation attempt and every reset.
	ValidationSeq uint64 `json:"validationSeq"`
	Validating    bool   `json:"validating"`
	Pending       bool   `json:"pending"`
}

// New starts a purchase session for a game. takesServerID tells whether the game's
// provider accepts a server ID next to the player ID.
func New(id string, userID int32, role models.Role, game models.Game, takesServerID bool) *Session {
	return &Session{
		ID:            id,
		UserID:        userID,
		Role:          role,
		Game:          game,
		TakesServerID: takesServerID,
		Step:          StepValidate,
	}
}

func (s *Session) mutable() error {
	if s.Step == StepDone {
		return ErrSessionDone
	}
	if s.Pending {
		return ErrPaymentPending
	}
	return nil
}

func (s *Session) advance() {
	switch {
	case s.ValidatedPlayer == nil:
		s.Step = StepValidate
	case s.SelectedPack == nil:
		s.Step = StepSelectPack
	default:
		s.Step = StepReview
	}
}

// BeginValidate records the player identity and opens a validation attempt. A blank
// player ID is rejected without contacting anyone.
func (s *Session) BeginValidate(playerID, serverID string) (Ticket, error) {
	if err := s.mutable(); err != nil {
		return Ticket{}, err
	}

	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return Ticket{}, ErrEmptyPlayerID
	}

	s.PlayerID = playerID
	s.ServerID = ""
	if s.TakesServerID {
		s.ServerID = strings.TrimSpace(serverID)
	}
	// A previous confirmation does not carry over to a new attempt.
	s.ValidatedPlayer = nil
	s.advance()
	s.ValidationSeq++
	s.Validating = true

	return Ticket{
		Seq: s.ValidationSeq,
		Request: ValidateRequest{
			GameID:   s.Game.APIGameID,
			Provider: s.Game.APIProvider,
			UserID:   s.PlayerID,
			ServerID: s.ServerID,
		},
	}, nil
}

// CompleteValidate applies the outcome of a validation attempt. Outcomes of attempts
// superseded by a newer one are discarded with ErrStaleResponse. A collaborator error
// leaves the session untouched.
func (s *Session) CompleteValidate(ticket Ticket, result ValidateResult, err error) error {
	if ticket.Seq != s.ValidationSeq || s.mutable() != nil {
		return ErrStaleResponse
	}
	s.Validating = false

	if err != nil {
		return err
	}

	if !result.Valid {
		s.ValidatedPlayer = nil
		s.advance()
		return &ValidationFailure{Message: result.Message}
	}

	player := result.Player
	if player.Username == "" {
		player.Username = s.PlayerID
	}
	s.ValidatedPlayer = &player
	s.advance()
	return nil
}

// SelectPack picks one of the game's active packs. Selecting before the player is
// validated is allowed; the session then stays in the Validate step.
func (s *Session) SelectPack(packID string) error {
	if err := s.mutable(); err != nil {
		return err
	}

	for _, pack := range s.Game.ActivePacks() {
		if pack.PackID == packID {
			selected := pack
			s.SelectedPack = &selected
			s.advance()
			return nil
		}
	}
	return ErrPackUnavailable
}

// CanPurchase reports whether the pay action is enabled.
func (s *Session) CanPurchase() bool {
	return s.ValidatedPlayer != nil && s.SelectedPack != nil && s.Step != StepDone && !s.Pending
}

// Price returns what the session's viewer pays for the selected pack.
func (s *Session) Price() (float64, error) {
	if s.SelectedPack == nil {
		return 0, ErrNotReady
	}
	return pricing.DisplayPrice(*s.SelectedPack, s.Role), nil
}

// Summary returns the review of the purchase.
func (s *Session) Summary() (Summary, error) {
	if s.ValidatedPlayer == nil || s.SelectedPack == nil {
		return Summary{}, ErrNotReady
	}

	return Summary{
		GameID:     s.Game.ID,
		GameName:   s.Game.Name,
		PlayerID:   s.PlayerID,
		ServerID:   s.ServerID,
		Username:   s.ValidatedPlayer.Username,
		Pack:       *s.SelectedPack,
		PackName:   s.SelectedPack.Name,
		Amount:     s.SelectedPack.Amount,
		Role:       s.Role,
		TotalPrice: pricing.DisplayPrice(*s.SelectedPack, s.Role),
	}, nil
}

// BeginPurchase moves the session to the Pay step and returns what has to be settled.
func (s *Session) BeginPurchase(method models.PaymentMethod) (Intent, error) {
	if err := s.mutable(); err != nil {
		return Intent{}, err
	}
	if !method.Valid() {
		return Intent{}, ErrUnknownMethod
	}
	if !s.CanPurchase() {
		return Intent{}, ErrNotReady
	}

	s.PaymentMethod = method
	s.Step = StepPay
	s.Pending = true

	return Intent{
		SessionID: s.ID,
		UserID:    s.UserID,
		GameID:    s.Game.ID,
		Pack:      *s.SelectedPack,
		PlayerID:  s.PlayerID,
		ServerID:  s.ServerID,
		Method:    method,
		Price:     pricing.DisplayPrice(*s.SelectedPack, s.Role),
	}, nil
}

// RefreshGame checks a pending payment against the stored game. If the selected pack
// has been removed, deactivated or repriced for the viewer, the payment is abandoned
// and the session returns to pack selection or review.
func (s *Session) RefreshGame(game models.Game) error {
	if !s.Pending {
		return ErrNoPendingPayment
	}

	previous := *s.SelectedPack
	s.Game = game
	s.SelectedPack = nil
	for _, pack := range game.ActivePacks() {
		if pack.PackID == previous.PackID {
			pack := pack
			s.SelectedPack = &pack
			break
		}
	}

	var err error
	switch {
	case s.SelectedPack == nil:
		err = ErrPackUnavailable
	case pricing.DisplayPrice(*s.SelectedPack, s.Role) != pricing.DisplayPrice(previous, s.Role):
		err = ErrPriceChanged
	default:
		return nil
	}

	s.Pending = false
	s.PaymentMethod = ""
	s.advance()
	return err
}

// CompletePurchase applies the outcome of the payment. On error the session returns
// to Review so the customer can try again.
func (s *Session) CompletePurchase(orderID string, err error) error {
	if !s.Pending {
		return ErrNoPendingPayment
	}
	s.Pending = false

	if err != nil {
		s.advance()
		return err
	}

	s.OrderID = orderID
	s.Step = StepDone
	return nil
}

// Reset starts a new purchase for the same game and viewer.
func (s *Session) Reset() {
	*s = Session{
		ID:            s.ID,
		UserID:        s.UserID,
		Role:          s.Role,
		Game:          s.Game,
		TakesServerID: s.TakesServerID,
		ValidationSeq: s.ValidationSeq + 1,
		Step:          StepValidate,
	}
}
