package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"topup_store/internal/catalog"
	"topup_store/internal/config"
	"topup_store/internal/models"
	"topup_store/internal/pkg/auth"
	"topup_store/internal/pkg/logger"
	"topup_store/internal/provider"
	providermocks "topup_store/internal/provider/mocks"
	"topup_store/internal/registry"
	"topup_store/internal/session"
	sessionmocks "topup_store/internal/session/mocks"
	"topup_store/internal/storage"
	storagemocks "topup_store/internal/storage/mocks"
	"topup_store/internal/workflow"
)

type fixture struct {
	app      *App
	db       *storagemocks.MockStorage
	sessions *sessionmocks.MockStore
	gateway  *providermocks.MockGateway

	mu        sync.Mutex
	purchases map[string][]byte
	drafts    map[string][]byte
	payLocks  map[string]bool
}

// newFixture wires the app to mocks. The session store mock keeps JSON copies of what
// is saved, the way Redis does.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		db:        storagemocks.NewMockStorage(ctrl),
		sessions:  sessionmocks.NewMockStore(ctrl),
		gateway:   providermocks.NewMockGateway(ctrl),
		purchases: map[string][]byte{},
		drafts:    map[string][]byte{},
		payLocks:  map[string]bool{},
	}
	f.app = NewApp(f.db, f.sessions, f.gateway, provider.DefaultProfiles(), logger.Nop())

	f.sessions.EXPECT().SavePurchase(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, s *workflow.Session) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		data, err := json.Marshal(s)
		f.purchases[s.ID] = data
		return err
	}).AnyTimes()
	f.sessions.EXPECT().LoadPurchase(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, id string) (*workflow.Session, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		data, ok := f.purchases[id]
		if !ok {
			return nil, session.ErrNotFound
		}
		var s workflow.Session
		return &s, json.Unmarshal(data, &s)
	}).AnyTimes()
	f.sessions.EXPECT().LockPayment(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, id string) (bool, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.payLocks[id] {
			return false, nil
		}
		f.payLocks[id] = true
		return true, nil
	}).AnyTimes()
	f.sessions.EXPECT().UnlockPayment(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, id string) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.payLocks, id)
		return nil
	}).AnyTimes()
	f.sessions.EXPECT().SaveDraft(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, d *session.Draft) error {
		data, err := json.Marshal(d)
		f.drafts[d.ID] = data
		return err
	}).AnyTimes()
	f.sessions.EXPECT().LoadDraft(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, id string) (*session.Draft, error) {
		data, ok := f.drafts[id]
		if !ok {
			return nil, session.ErrNotFound
		}
		var d session.Draft
		return &d, json.Unmarshal(data, &d)
	}).AnyTimes()
	f.sessions.EXPECT().DeleteDraft(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, id string) error {
		if _, ok := f.drafts[id]; !ok {
			return session.ErrNotFound
		}
		delete(f.drafts, id)
		return nil
	}).AnyTimes()

	return f
}

func (f *fixture) loadPurchase(t *testing.T, id string) *workflow.Session {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var s workflow.Session
	require.NoError(t, json.Unmarshal(f.purchases[id], &s))
	return &s
}

func (f *fixture) storePurchase(t *testing.T, s *workflow.Session) {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchases[s.ID] = data
}

func boolPtr(b bool) *bool { return &b }

func floatPtr(v float64) *float64 { return &v }

func testGame() *models.Game {
	return &models.Game{
		ID:          "game-1",
		Name:        "Mobile Legends",
		Description: "5v5 MOBA",
		Image:       "https://cdn.example/mlbb.png",
		APIProvider: models.ProviderYokcash,
		APIGameID:   "mlbb",
		Region:      "ID",
		Category:    models.DefaultCategory,
		Packs: []models.Pack{
			{PackID: "p1", Name: "86 Diamonds", Description: "86 Diamonds", Amount: 86, RetailPrice: 70, ResellerPrice: 66.5, CostPrice: 63},
			{PackID: "p2", Name: "172 Diamonds", Amount: 172, RetailPrice: 140, ResellerPrice: 133, CostPrice: 126, IsActive: boolPtr(false)},
		},
	}
}

func TestProcessAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing credentials", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.app.ProcessAuth(ctx, models.AuthRequest{Username: "  ", Password: "secret"})
		assert.ErrorIs(t, err, ErrMissingUsernameOrPassword)
	})

	t.Run("Existing user", func(t *testing.T) {
		f := newFixture(t)
		f.db.EXPECT().CheckUser(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) (*models.User, error) {
			u.ID = 5
			u.Role = models.RoleReseller
			return u, nil
		})

		token, err := f.app.ProcessAuth(ctx, models.AuthRequest{Username: "shop", Password: "secret"})
		require.NoError(t, err)
		claims, err := auth.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, int32(5), claims.UserID)
		assert.Equal(t, models.RoleReseller, claims.Role)
	})

	t.Run("New user", func(t *testing.T) {
		f := newFixture(t)
		f.db.EXPECT().CheckUser(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) (*models.User, error) {
			return u, nil
		})
		f.db.EXPECT().CreateUser(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) (*models.User, error) {
			assert.Equal(t, models.RoleNormalUser, u.Role)
			assert.Zero(t, u.Balance)
			u.ID = 9
			return u, nil
		})

		token, err := f.app.ProcessAuth(ctx, models.AuthRequest{Username: "player", Password: "secret"})
		require.NoError(t, err)
		claims, err := auth.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, int32(9), claims.UserID)
	})

	t.Run("Admin bootstrap", func(t *testing.T) {
		previous := config.AdminUsername
		config.AdminUsername = "root"
		t.Cleanup(func() { config.AdminUsername = previous })

		f := newFixture(t)
		f.db.EXPECT().CheckUser(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) (*models.User, error) {
			return u, nil
		})
		f.db.EXPECT().CreateUser(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) (*models.User, error) {
			u.ID = 1
			return u, nil
		})

		token, err := f.app.ProcessAuth(ctx, models.AuthRequest{Username: "root", Password: "secret"})
		require.NoError(t, err)
		claims, err := auth.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, claims.Role)
	})

	t.Run("Wrong password", func(t *testing.T) {
		f := newFixture(t)
		f.db.EXPECT().CheckUser(ctx, gomock.Any()).Return(&models.User{ID: 3}, bcrypt.ErrMismatchedHashAndPassword)

		_, err := f.app.ProcessAuth(ctx, models.AuthRequest{Username: "shop", Password: "nope"})
		assert.ErrorIs(t, err, bcrypt.ErrMismatchedHashAndPassword)
	})
}

func TestCreateGame(t *testing.T) {
	ctx := context.Background()

	t.Run("Forces the Smile.one region", func(t *testing.T) {
		f := newFixture(t)
		game := *testGame()
		game.APIProvider = models.ProviderSmileOne
		game.Region = "ID"
		game.Category = ""

		f.db.EXPECT().CreateGame(ctx, gomock.Any()).Return(nil)

		created, err := f.app.CreateGame(ctx, game)
		require.NoError(t, err)
		assert.Equal(t, "BR", created.Region)
		assert.Equal(t, models.DefaultCategory, created.Category)
		assert.NotEmpty(t, created.ID)
		assert.Len(t, created.Packs, 2)
	})

	t.Run("Missing fields", func(t *testing.T) {
		f := newFixture(t)
		game := *testGame()
		game.Name = " "
		game.Image = ""
		game.APIProvider = "unipin"

		_, err := f.app.CreateGame(ctx, game)
		var verr *GameValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"name", "image"}, verr.Missing)
		assert.Equal(t, []string{"apiProvider"}, verr.Invalid)
	})

	t.Run("No packs", func(t *testing.T) {
		f := newFixture(t)
		game := *testGame()
		game.Packs = nil

		_, err := f.app.CreateGame(ctx, game)
		assert.ErrorIs(t, err, ErrNoPacks)
	})

	t.Run("Duplicate pack ids", func(t *testing.T) {
		f := newFixture(t)
		game := *testGame()
		game.Packs[1].PackID = "p1"

		_, err := f.app.CreateGame(ctx, game)
		var dup *registry.DuplicatePackError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "p1", dup.PackID)
	})

	t.Run("Invalid pack", func(t *testing.T) {
		f := newFixture(t)
		game := *testGame()
		game.Packs[0].RetailPrice = -1

		_, err := f.app.CreateGame(ctx, game)
		var verr *registry.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"retailPrice"}, verr.Invalid)
	})
}

func TestGetGame_RolePricing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.db.EXPECT().GetGame(ctx, "game-1").Return(testGame(), nil).Times(2)

	detail, err := f.app.GetGame(ctx, "game-1", models.RoleReseller)
	require.NoError(t, err)
	require.Len(t, detail.Packs, 1, "inactive packs are hidden")
	assert.Equal(t, 66.5, detail.Packs[0].Price)
	assert.True(t, detail.TakesServerID)

	detail, err = f.app.GetGame(ctx, "game-1", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 70.0, detail.Packs[0].Price)
}

func TestListGames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	filter := models.GameFilter{Search: "legends", APIProvider: models.ProviderYokcash}
	f.db.EXPECT().ListGames(ctx, filter).Return([]models.Game{*testGame()}, nil)

	cards, err := f.app.ListGames(ctx, models.GameFilter{Search: " legends ", APIProvider: models.ProviderYokcash})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, 70.0, cards[0].MinPrice)
	assert.Equal(t, 70.0, cards[0].MaxPrice)
}

func TestUpdatePack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	input := models.PackInput{Name: "86 Diamonds", Amount: floatPtr(86), RetailPrice: floatPtr(75), ResellerPrice: floatPtr(70), CostPrice: floatPtr(60)}
	f.db.EXPECT().UpdatePack(ctx, "game-1", gomock.Any()).DoAndReturn(func(_ context.Context, _ string, pack models.Pack) error {
		assert.Equal(t, "p1", pack.PackID)
		assert.Equal(t, 75.0, pack.RetailPrice)
		return nil
	})

	pack, err := f.app.UpdatePack(ctx, "game-1", "p1", input)
	require.NoError(t, err)
	assert.Equal(t, "p1", pack.PackID)

	input.PackID = "p9"
	_, err = f.app.UpdatePack(ctx, "game-1", "p1", input)
	assert.ErrorIs(t, err, ErrPackIDMismatch)
}

func TestDraft_CatalogToCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const adminID = int32(1)

	form := &models.Game{
		Name:        "Free Fire",
		Description: "Battle royale",
		Image:       "https://cdn.example/ff.png",
		APIProvider: models.ProviderSmileOne,
		APIGameID:   "freefire",
	}
	view, err := f.app.CreateDraft(ctx, adminID, models.DraftRequest{Game: form})
	require.NoError(t, err)
	assert.Equal(t, "BR", view.Game.Region)
	assert.Empty(t, view.Packs)

	f.gateway.EXPECT().FetchCatalog(ctx, models.ProviderSmileOne, "freefire").Return(&catalog.Catalog{
		Provider: models.ProviderSmileOne,
		Products: []models.NormalizedProduct{{ID: "77", Name: "100 Diamonds", Price: 70}},
	}, nil)

	view, err = f.app.LoadDraftCatalog(ctx, adminID, view.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, view.Warning)
	require.Len(t, view.Catalog, 1)

	view, err = f.app.ImportPack(ctx, adminID, view.ID, "77")
	require.NoError(t, err)
	require.Len(t, view.Packs, 1)
	assert.Equal(t, models.Pack{PackID: "77", Name: "100 Diamonds", Description: "100 Diamonds", RetailPrice: 70, ResellerPrice: 66.5, CostPrice: 63}, view.Packs[0])

	_, err = f.app.ImportPack(ctx, adminID, view.ID, "77")
	var dup *registry.DuplicatePackError
	require.ErrorAs(t, err, &dup)

	_, err = f.app.AddManualPack(ctx, adminID, view.ID, models.PackInput{PackID: "m1", Name: "Weekly"})
	var verr *registry.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"amount", "retailPrice", "resellerPrice", "costPrice"}, verr.Missing)

	view, err = f.app.AddManualPack(ctx, adminID, view.ID, models.PackInput{PackID: "m1", Name: "Weekly", Amount: floatPtr(0), RetailPrice: floatPtr(0), ResellerPrice: floatPtr(0), CostPrice: floatPtr(0)})
	require.NoError(t, err)
	assert.Len(t, view.Packs, 2)

	_, err = f.app.ImportPack(ctx, 2, view.ID, "77")
	assert.ErrorIs(t, err, ErrForbidden)

	f.db.EXPECT().CreateGame(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, g *models.Game) error {
		assert.Equal(t, "BR", g.Region)
		assert.Len(t, g.Packs, 2)
		return nil
	})

	game, err := f.app.CommitDraft(ctx, adminID, view.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Free Fire", game.Name)
	assert.Empty(t, f.drafts, "committed draft is discarded")
}

func TestDraft_EditExistingGame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const adminID = int32(1)

	f.db.EXPECT().GetGame(ctx, "game-1").Return(testGame(), nil)
	view, err := f.app.CreateDraft(ctx, adminID, models.DraftRequest{GameID: "game-1"})
	require.NoError(t, err)
	assert.Equal(t, "game-1", view.GameID)
	require.Len(t, view.Packs, 2)

	view, err = f.app.BeginEditPack(ctx, adminID, view.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", view.Editing)

	view, err = f.app.RemovePack(ctx, adminID, view.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, view.Editing, "removing the pack under edit cancels the edit")

	view, err = f.app.EditPack(ctx, adminID, view.ID, "p1", models.PackInput{PackID: "p1", Name: "x", Amount: floatPtr(1), RetailPrice: floatPtr(1), ResellerPrice: floatPtr(1), CostPrice: floatPtr(1)})
	require.NoError(t, err, "editing a removed pack is a no-op")
	require.Len(t, view.Packs, 1)
	assert.Equal(t, "p2", view.Packs[0].PackID)

	_, err = f.app.RemovePack(ctx, adminID, view.ID, 3)
	assert.ErrorIs(t, err, registry.ErrIndexOutOfRange)

	f.gateway.EXPECT().FetchCatalog(ctx, models.ProviderYokcash, "mlbb").Return(&catalog.Catalog{Products: []models.NormalizedProduct{}}, &provider.NetworkError{Method: "GET", URL: "x", Status: 502})
	view, err = f.app.LoadDraftCatalog(ctx, adminID, view.ID, nil)
	require.NoError(t, err, "a catalog failure never blocks the form")
	assert.NotEmpty(t, view.Warning)
	assert.Empty(t, view.Catalog)
	assert.Len(t, view.Packs, 1)

	f.db.EXPECT().UpdateGame(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, g *models.Game) error {
		assert.Equal(t, "game-1", g.ID)
		assert.Len(t, g.Packs, 1)
		return nil
	})
	_, err = f.app.CommitDraft(ctx, adminID, view.ID, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, f.app.DiscardDraft(ctx, adminID, view.ID), session.ErrNotFound)
}

func startPurchase(t *testing.T, f *fixture, role models.Role) *PurchaseView {
	t.Helper()
	ctx := context.Background()
	f.db.EXPECT().GetUser(ctx, int32(7)).Return(&models.User{ID: 7, Username: "player", Role: role}, nil)
	f.db.EXPECT().GetGame(ctx, "game-1").Return(testGame(), nil)

	view, err := f.app.StartPurchase(ctx, 7, "game-1")
	require.NoError(t, err)
	return view
}

func TestPurchase_WalletFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	view := startPurchase(t, f, models.RoleReseller)
	assert.Equal(t, workflow.StepValidate, view.Step)
	assert.True(t, view.Game.TakesServerID)

	f.gateway.EXPECT().ValidateUser(ctx, workflow.ValidateRequest{GameID: "mlbb", Provider: models.ProviderYokcash, UserID: "12345", ServerID: "2001"}).
		Return(workflow.ValidateResult{Valid: true, Player: models.Player{Username: "hero"}}, nil)

	view, err := f.app.ValidatePlayer(ctx, 7, view.ID, models.ValidatePlayerRequest{UserID: " 12345 ", ServerID: "2001"})
	require.NoError(t, err)
	assert.Equal(t, workflow.StepSelectPack, view.Step)
	assert.Equal(t, "hero", view.Player.Username)

	_, err = f.app.SelectPack(ctx, 7, view.ID, "p2")
	assert.ErrorIs(t, err, workflow.ErrPackUnavailable)

	view, err = f.app.SelectPack(ctx, 7, view.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StepReview, view.Step)
	assert.Equal(t, 66.5, view.SelectedPack.Price)
	assert.True(t, view.CanPurchase)

	summary, err := f.app.PurchaseSummary(ctx, 7, view.ID)
	require.NoError(t, err)
	assert.Equal(t, "hero", summary.Username)
	assert.Equal(t, 66.5, summary.TotalPrice)

	f.db.EXPECT().GetGame(ctx, "game-1").Return(testGame(), nil)
	f.db.EXPECT().PurchaseWithWallet(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, order *models.Order) error {
		assert.Equal(t, 66.5, order.Price)
		assert.Equal(t, "12345", order.PlayerID)
		assert.Equal(t, "2001", order.ServerID)
		order.Status = models.OrderPaid
		return nil
	})

	view, err = f.app.Pay(ctx, 7, view.ID, models.PaymentWallet)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepDone, view.Step)
	assert.NotEmpty(t, view.OrderID)

	_, err = f.app.SelectPack(ctx, 7, view.ID, "p1")
	assert.ErrorIs(t, err, workflow.ErrSessionDone)

	view, err = f.app.ResetPurchase(ctx, 7, view.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepValidate, view.Step)
	assert.Nil(t, view.Player)
	assert.Nil(t, view.SelectedPack)
}

func TestPurchase_FailedPaymentReturnsToReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	view := startPurchase(t, f, models.RoleNormalUser)

	f.gateway.EXPECT().ValidateUser(ctx, gomock.Any()).Return(workflow.ValidateResult{Valid: true}, nil)
	_, err := f.app.ValidatePlayer(ctx, 7, view.ID, models.ValidatePlayerRequest{UserID: "12345"})
	require.NoError(t, err)
	_, err = f.app.SelectPack(ctx, 7, view.ID, "p1")
	require.NoError(t, err)

	insufficient := errors.New("insufficient funds")
	f.db.EXPECT().GetGame(ctx, "game-1").Return(testGame(), nil).Times(2)
	f.db.EXPECT().PurchaseWithWallet(ctx, gomock.Any()).Return(insufficient)

	view, err = f.app.Pay(ctx, 7, view.ID, models.PaymentWallet)
	assert.ErrorIs(t, err, insufficient)
	assert.Equal(t, workflow.StepReview, view.Step)
	assert.Empty(t, view.OrderID)
	assert.True(t, view.CanPurchase)

	f.db.EXPECT().CreateOrder(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, order *models.Order) error {
		assert.Equal(t, models.OrderPending, order.Status)
		assert.Equal(t, models.PaymentUPI, order.Method)
		assert.Equal(t, 70.0, order.Price)
		return nil
	})
	view, err = f.app.Pay(ctx, 7, view.ID, models.PaymentUPI)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepDone, view.Step)

	_, err = f.app.Pay(ctx, 7, view.ID, "bitcoin")
	assert.ErrorIs(t, err, workflow.ErrSessionDone)
}

func readyPurchase(t *testing.T, f *fixture) *PurchaseView {
	t.Helper()
	ctx := context.Background()
	view := startPurchase(t, f, models.RoleNormalUser)

	f.gateway.EXPECT().ValidateUser(ctx, gomock.Any()).Return(workflow.ValidateResult{Valid: true, Player: models.Player{Username: "hero"}}, nil)
	_, err := f.app.ValidatePlayer(ctx, 7, view.ID, models.ValidatePlayerRequest{UserID: "12345"})
	require.NoError(t, err)
	view, err = f.app.SelectPack(ctx, 7, view.ID, "p1")
	require.NoError(t, err)
	require.True(t, view.CanPurchase)
	return view
}

func TestPurchase_ConcurrentPayChargesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	view := readyPurchase(t, f)

	release := make(chan struct{})
	var charges int32
	f.db.EXPECT().GetGame(gomock.Any(), "game-1").Return(testGame(), nil).AnyTimes()
	f.db.EXPECT().PurchaseWithWallet(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, order *models.Order) error {
		atomic.AddInt32(&charges, 1)
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		return nil
	}).AnyTimes()

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.app.Pay(ctx, 7, view.ID, models.PaymentWallet)
			results <- err
		}()
	}

	// The first payment holds the session until released, so the other one returns first.
	assert.ErrorIs(t, <-results, workflow.ErrPaymentPending)
	close(release)
	require.NoError(t, <-results)

	assert.Equal(t, int32(1), atomic.LoadInt32(&charges), "wallet charges for one session")
	assert.Equal(t, workflow.StepDone, f.loadPurchase(t, view.ID).Step)
	assert.Empty(t, f.payLocks, "payment lock is released")

	_, err := f.app.Pay(ctx, 7, view.ID, models.PaymentWallet)
	assert.ErrorIs(t, err, workflow.ErrSessionDone)
	assert.Equal(t, int32(1), atomic.LoadInt32(&charges))
}

func TestPurchase_PackChangedBeforePay(t *testing.T) {
	ctx := context.Background()

	t.Run("Repriced pack is charged at the new price after review", func(t *testing.T) {
		f := newFixture(t)
		view := readyPurchase(t, f)

		repriced := testGame()
		repriced.Packs[0].RetailPrice = 75
		f.db.EXPECT().GetGame(ctx, "game-1").Return(repriced, nil).Times(2)

		view, err := f.app.Pay(ctx, 7, view.ID, models.PaymentWallet)
		assert.ErrorIs(t, err, workflow.ErrPriceChanged)
		assert.Equal(t, workflow.StepReview, view.Step)
		assert.Equal(t, 75.0, view.SelectedPack.Price)
		assert.False(t, f.loadPurchase(t, view.ID).Pending)

		f.db.EXPECT().PurchaseWithWallet(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, order *models.Order) error {
			assert.Equal(t, 75.0, order.Price)
			return nil
		})
		view, err = f.app.Pay(ctx, 7, view.ID, models.PaymentWallet)
		require.NoError(t, err)
		assert.Equal(t, workflow.StepDone, view.Step)
	})

	t.Run("Deactivated pack is not sold", func(t *testing.T) {
		f := newFixture(t)
		view := readyPurchase(t, f)

		deactivated := testGame()
		deactivated.Packs[0].IsActive = boolPtr(false)
		f.db.EXPECT().GetGame(ctx, "game-1").Return(deactivated, nil)

		view, err := f.app.Pay(ctx, 7, view.ID, models.PaymentWallet)
		assert.ErrorIs(t, err, workflow.ErrPackUnavailable)
		assert.Equal(t, workflow.StepSelectPack, view.Step)
		assert.Nil(t, view.SelectedPack)
		assert.False(t, view.CanPurchase)
	})

	t.Run("Deleted game", func(t *testing.T) {
		f := newFixture(t)
		view := readyPurchase(t, f)

		f.db.EXPECT().GetGame(ctx, "game-1").Return(nil, storage.ErrNotFound)

		_, err := f.app.Pay(ctx, 7, view.ID, models.PaymentWallet)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.Equal(t, workflow.StepReview, f.loadPurchase(t, view.ID).Step)
	})
}

func TestPurchase_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("Blank player id makes no call", func(t *testing.T) {
		f := newFixture(t)
		view := startPurchase(t, f, models.RoleNormalUser)

		_, err := f.app.ValidatePlayer(ctx, 7, view.ID, models.ValidatePlayerRequest{UserID: "   "})
		assert.ErrorIs(t, err, workflow.ErrEmptyPlayerID)
	})

	t.Run("Rejected player", func(t *testing.T) {
		f := newFixture(t)
		view := startPurchase(t, f, models.RoleNormalUser)

		f.gateway.EXPECT().ValidateUser(ctx, gomock.Any()).Return(workflow.ValidateResult{Valid: false, Message: "Player not found"}, nil)
		view, err := f.app.ValidatePlayer(ctx, 7, view.ID, models.ValidatePlayerRequest{UserID: "1"})
		var failure *workflow.ValidationFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, "Player not found", failure.Message)
		assert.Equal(t, workflow.StepValidate, view.Step)
		assert.False(t, f.loadPurchase(t, view.ID).Validating)
	})

	t.Run("Gateway failure", func(t *testing.T) {
		f := newFixture(t)
		view := startPurchase(t, f, models.RoleNormalUser)

		f.gateway.EXPECT().ValidateUser(ctx, gomock.Any()).Return(workflow.ValidateResult{}, &provider.NetworkError{Method: "POST", URL: "x", Status: 500})
		_, err := f.app.ValidatePlayer(ctx, 7, view.ID, models.ValidatePlayerRequest{UserID: "1"})
		var netErr *provider.NetworkError
		assert.ErrorAs(t, err, &netErr)
	})

	t.Run("Answer after a reset is discarded", func(t *testing.T) {
		f := newFixture(t)
		view := startPurchase(t, f, models.RoleNormalUser)

		f.gateway.EXPECT().ValidateUser(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, _ workflow.ValidateRequest) (workflow.ValidateResult, error) {
			s := f.loadPurchase(t, view.ID)
			s.Reset()
			f.storePurchase(t, s)
			return workflow.ValidateResult{Valid: true, Player: models.Player{Username: "late"}}, nil
		})

		view, err := f.app.ValidatePlayer(ctx, 7, view.ID, models.ValidatePlayerRequest{UserID: "1"})
		assert.ErrorIs(t, err, workflow.ErrStaleResponse)
		assert.Nil(t, view.Player)
		assert.Nil(t, f.loadPurchase(t, view.ID).ValidatedPlayer)
	})

	t.Run("Other user's session", func(t *testing.T) {
		f := newFixture(t)
		view := startPurchase(t, f, models.RoleNormalUser)

		_, err := f.app.GetPurchase(ctx, 8, view.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestWallet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, amount := range []float64{0, -5, 0.001} {
		_, err := f.app.AddMoney(ctx, 7, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}

	f.db.EXPECT().AddFunds(ctx, int32(7), 10.5).Return(110.5, nil)
	balance, err := f.app.AddMoney(ctx, 7, 10.499)
	require.NoError(t, err)
	assert.Equal(t, 110.5, balance.Balance)

	f.db.EXPECT().GetWallet(ctx, int32(7)).Return(&models.WalletInfo{Balance: 110.5, History: []models.WalletTransaction{
		{Kind: storage.KindDeposit, Amount: 10.5},
		{Kind: storage.KindPurchase, Amount: -70, OrderID: "o-1"},
	}}, nil)
	info, err := f.app.GetWallet(ctx, 7, storage.KindPurchase)
	require.NoError(t, err)
	require.Len(t, info.History, 1)
	assert.Equal(t, "o-1", info.History[0].OrderID)

	_, err = f.app.GetWallet(ctx, 7, "refund")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestSetUserRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.app.SetUserRole(ctx, 3, models.RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidRole)

	f.db.EXPECT().GetUser(ctx, int32(1)).Return(&models.User{ID: 1, Role: models.RoleAdmin}, nil)
	_, err = f.app.SetUserRole(ctx, 1, models.RoleReseller)
	assert.ErrorIs(t, err, ErrAdminRole)

	f.db.EXPECT().GetUser(ctx, int32(3)).Return(&models.User{ID: 3, Username: "shop", Role: models.RoleNormalUser}, nil)
	f.db.EXPECT().UpdateUserRole(ctx, int32(3), models.RoleReseller).Return(nil)
	user, err := f.app.SetUserRole(ctx, 3, models.RoleReseller)
	require.NoError(t, err)
	assert.Equal(t, models.RoleReseller, user.Role)
}
