package routes

import (
	"context"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/config"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/handlers"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/middleware"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/repository"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/services"
	chatws "github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	offerRepo := repository.NewOfferRepository(db)
	contractRepo := repository.NewContractRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	completionRepo := repository.NewCompletionRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	chatHub := chatws.NewHub()
	go chatHub.Run()

	chatService := services.NewChatService(conversationRepo, messageRepo, profileRepo)
	offerService := services.NewOfferService(db, offerRepo, profileRepo, contractRepo, conversationRepo, messageRepo, userRepo)
	gateway := services.NewHTTPCheckoutGateway(cfg.GatewayBaseURL, cfg.GatewaySecretKey)
	checkoutService := services.NewCheckoutService(gateway, profileRepo, offerRepo, offerService, chatHub, cfg.AppBaseURL)
	accessService := services.NewAccessService()
	billingService := services.NewBillingService(profileRepo, accessService)
	ledgerService := services.NewLedgerService(contractRepo, payoutRepo, completionRepo, offerRepo, chatService)

	sweepService := services.NewSweepService(offerService, ledgerService, cfg.SweepInterval)
	go sweepService.Start(context.Background())

	authHandler := handlers.NewAuthHandler(db, userRepo, profileRepo, cfg.JWTSecret)
	profileHandler := handlers.NewProfileHandler(profileRepo)
	accessHandler := handlers.NewAccessHandler(accessService, profileRepo)
	billingHandler := handlers.NewBillingHandler(billingService, checkoutService)
	offerHandler := handlers.NewOfferHandler(offerService, checkoutService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	chatHandler := handlers.NewChatHandler(chatService, chatHub, cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	// Route checks accept anonymous callers; the token, when present, is
	// parsed without rejecting requests that lack one.
	api.Get("/v1/access/route", middleware.AuthOptional(cfg.JWTSecret), accessHandler.CheckRoute)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	users := authProtected.Group("/users")
	users.Get("/profile", profileHandler.GetProfile)
	users.Put("/profile", profileHandler.UpdateProfile)
	users.Post("/onboarding", profileHandler.CompleteOnboarding)

	billing := authProtected.Group("/billing")
	billing.Post("/trial", middleware.RequireRole("customer"), billingHandler.StartTrial)
	billing.Post("/cancel", middleware.RequireRole("customer"), billingHandler.Cancel)
	billing.Get("/entitlement", billingHandler.GetEntitlement)
	billing.Post("/checkout", middleware.RequireRole("customer"), billingHandler.CreateCheckout)
	billing.Post("/checkout/sync", billingHandler.SyncCheckoutSession)

	offers := authProtected.Group("/offers")
	offers.Post("", middleware.RequireRole("coach"), offerHandler.CreateOffer)
	offers.Get("", offerHandler.ListOffers)
	offers.Post("/messages/:messageId/reject", offerHandler.RejectOfferByMessage)
	offers.Get("/:id", offerHandler.GetOffer)
	offers.Post("/:id/checkout", middleware.RequireRole("customer"), offerHandler.CreateCheckout)
	offers.Post("/:id/reject", offerHandler.RejectOffer)

	contracts := authProtected.Group("/contracts")
	contracts.Get("", ledgerHandler.ListContracts)
	contracts.Get("/:id", ledgerHandler.GetContract)
	contracts.Post("/:id/complete", middleware.RequireRole("coach"), ledgerHandler.CompleteContract)
	contracts.Post("/:id/complete/retry", middleware.RequireRole("coach"), ledgerHandler.RetryCompletionLedger)
	contracts.Post("/:id/renew", ledgerHandler.RenewContract)

	payouts := authProtected.Group("/payouts", middleware.RequireRole("coach"))
	payouts.Get("", ledgerHandler.ListPayouts)
	payouts.Post("/withdrawals", ledgerHandler.RequestWithdrawal)

	conversations := authProtected.Group("/conversations", middleware.RequireCoachLink(profileRepo))
	conversations.Get("", chatHandler.ListConversations)
	conversations.Post("", chatHandler.CreateConversation)
	conversations.Get("/:id/messages", chatHandler.GetMessages)
	conversations.Post("/:id/messages", chatHandler.SendMessage)

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))
}
