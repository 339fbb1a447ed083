package service

import (
	"topup_store/internal/app"
	"topup_store/internal/models"
	"topup_store/internal/pkg/auth"
	"topup_store/internal/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// Service encapsulates the HTTP server configuration, including the application's business logic,
// HTTP handlers, the server's run address, and a logger for event and error logging.
type Service struct {
	handlers   *handlers
	app        *app.App
	runAddress string
	log        *logger.Logger
}

// NewService creates and initializes a new Service instance.
// It sets up the handlers using the provided application and logger,
// and configures the server's run address.
func NewService(app *app.App, runAddress string, l *logger.Logger) *Service {
	handlers := newHandlers(app, l)
	return &Service{handlers: handlers, app: app, runAddress: runAddress, log: l}
}

// RunAddress returns the address the service listens on.
func (service *Service) RunAddress() string {
	return service.runAddress
}

// NewRouter sets up and returns a new chi.Router instance with the necessary middleware and routes.
// Game pages are public, purchases and wallets need a token, and /api/admin needs an admin token.
func (service *Service) NewRouter() chi.Router {
	h := service.handlers

	router := chi.NewRouter()
	router.Use(service.log.WithLogging())
	router.Post("/api/auth", h.authHandler)

	router.Group(func(r chi.Router) {
		r.Use(auth.OptionalJWTMiddleware())
		r.Get("/api/games", h.listGamesHandler)
		r.Get("/api/games/{id}", h.getGameHandler)
	})

	router.Group(func(r chi.Router) {
		r.Use(auth.CheckJWTMiddleware())

		r.Get("/api/wallet", h.walletHandler)
		r.Post("/api/wallet/add-money", h.addMoneyHandler)

		r.Route("/api/purchase/sessions", func(r chi.Router) {
			r.Post("/", h.startPurchaseHandler)
			r.Get("/{id}", h.getPurchaseHandler)
			r.Post("/{id}/validate", h.validatePlayerHandler)
			r.Post("/{id}/select", h.selectPackHandler)
			r.Get("/{id}/summary", h.summaryHandler)
			r.Post("/{id}/pay", h.payHandler)
			r.Post("/{id}/reset", h.resetPurchaseHandler)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))

			r.Post("/games", h.createGameHandler)
			r.Get("/games/{id}", h.adminGetGameHandler)
			r.Put("/games/{id}", h.updateGameHandler)
			r.Delete("/games/{id}", h.deleteGameHandler)
			r.Put("/games/{id}/packs/{packId}", h.updatePackHandler)

			r.Post("/drafts", h.createDraftHandler)
			r.Get("/drafts/{id}", h.draftHandler(h.getDraft))
			r.Delete("/drafts/{id}", h.discardDraftHandler)
			r.Post("/drafts/{id}/catalog", h.draftHandler(h.loadCatalog))
			r.Post("/drafts/{id}/packs/import", h.draftHandler(h.importPack))
			r.Post("/drafts/{id}/packs", h.draftHandler(h.addManualPack))
			r.Post("/drafts/{id}/packs/{pack}/edit", h.draftHandler(h.beginEditPack))
			r.Delete("/drafts/{id}/edit", h.draftHandler(h.cancelEditPack))
			r.Put("/drafts/{id}/packs/{pack}", h.draftHandler(h.editPack))
			r.Delete("/drafts/{id}/packs/{pack}", h.draftHandler(h.removePack))
			r.Post("/drafts/{id}/commit", h.commitDraftHandler)

			r.Get("/users", h.listUsersHandler)
			r.Put("/users/{id}/role", h.setUserRoleHandler)
			r.Get("/balances", h.providerBalancesHandler)
		})
	})

	return router
}
