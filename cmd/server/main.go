package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"xmr_shop_back_end/internal/bot"
	"xmr_shop_back_end/internal/checkout"
	"xmr_shop_back_end/internal/config"
	"xmr_shop_back_end/internal/database"
	"xmr_shop_back_end/internal/handlers"
	"xmr_shop_back_end/internal/monero"
	"xmr_shop_back_end/internal/orders"
	"xmr_shop_back_end/internal/pricing"
	"xmr_shop_back_end/internal/ratelimit"
	"xmr_shop_back_end/internal/routes"
	"xmr_shop_back_end/internal/utils"
)

func main() {
	config.Load()

	walletRPC := os.Getenv("MONERO_WALLET_RPC_URL")
	if walletRPC == "" {
		log.Fatal("❌ MONERO_WALLET_RPC_URL manquant")
	}

	if err := database.Connect(); err != nil {
		log.Fatalf("❌ %v", err)
	}
	if err := database.Migrate(database.DB); err != nil {
		log.Fatalf("❌ Échec migration: %v", err)
	}
	if err := database.SeedProducts(database.DB); err != nil {
		log.Fatalf("❌ Échec seed catalogue: %v", err)
	}

	wallet := monero.NewWallet(walletRPC, config.RPCTimeout)
	prices := pricing.NewService(database.Redis, os.Getenv("PRICE_TICKER_URL"))
	lifecycle := orders.NewManager(database.DB, wallet, config.PaymentTimeout, config.ConfirmationsRequired)
	dialogues := checkout.NewManager(config.DialogueStaleAfter)
	limiter := ratelimit.New(config.RateLimitMaxCalls, config.RateLimitPeriod)

	shopBot := bot.New(database.DB, lifecycle, dialogues, limiter, prices).
		WithQR(utils.GeneratePaymentQR).
		WithConfirmationNotifier(utils.NotifyOrderConfirmed)

	// Reaper : balayage périodique des commandes en attente expirées,
	// indépendant de toute interaction utilisateur.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go runReaper(ctx, lifecycle)

	r := gin.Default()
	routes.RegisterRoutes(r,
		&handlers.ActionHandlers{Bot: shopBot},
		&handlers.AdminHandlers{DB: database.DB, Wallet: wallet},
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Println("🚀 Boutique XMR lancée sur le port", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("❌ Serveur arrêté: %v", err)
	}
}

func runReaper(ctx context.Context, lifecycle *orders.Manager) {
	ticker := time.NewTicker(config.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("🧹 Reaper arrêté")
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
			if _, err := lifecycle.ExpireStale(sweepCtx); err != nil {
				log.Printf("❌ Erreur reaper: %v", err)
			}
			cancel()
		}
	}
}
