package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"xmr_shop_back_end/internal/models"
)

// --- Variables Globales ---
var (
	DB    *gorm.DB
	Redis *redis.Client
)

// Connect initialise la base relationnelle (Postgres, ou SQLite par défaut
// comme la config historique) puis Redis si configuré.
func Connect() error {
	dsn := os.Getenv("DATABASE_URL")

	var (
		db  *gorm.DB
		err error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	switch {
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	case dsn != "":
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	default:
		db, err = gorm.Open(sqlite.Open("bot.db"), gormCfg)
	}
	if err != nil {
		return fmt.Errorf("échec connexion base de données: %w", err)
	}

	DB = db
	log.Println("✅ Base de données connectée")

	connectRedis()
	return nil
}

// connectRedis est optionnel : sans REDIS_HOST le cache de prix fonctionne
// en mode dégradé (fetch direct + valeur de repli).
func connectRedis() {
	redisHost := os.Getenv("REDIS_HOST")
	if redisHost == "" {
		log.Println("⚠️  REDIS_HOST non configuré — cache de prix désactivé")
		return
	}

	Redis = redis.NewClient(&redis.Options{
		Addr:         redisHost,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Redis.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  Impossible de se connecter à Redis: %v — cache désactivé", err)
		Redis = nil
		return
	}
	log.Println("✅ Redis connecté avec succès")
}

// Migrate crée ou met à jour les tables du modèle.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Cart{},
		&models.CartItem{},
		&models.ShippingAddress{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
	)
}

// SeedProducts insère les produits d'exemple si le catalogue est vide.
func SeedProducts(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Product{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Println("✅ Catalogue déjà initialisé")
		return nil
	}

	samples := []models.Product{
		{
			Name:        "XMR Hoodie",
			Description: "Hoodie Monero stylé — parfait pour les amoureux de la vie privée.",
			PriceXMR:    decimal.RequireFromString("0.005"),
			ImageURL:    "https://i.imgur.com/hoodie.jpg",
			IsAvailable: true,
		},
		{
			Name:        "XMR Cap",
			Description: "Casquette noire avec le logo Monero — confortable et sobre.",
			PriceXMR:    decimal.RequireFromString("0.002"),
			ImageURL:    "https://i.imgur.com/cap.jpg",
			IsAvailable: true,
		},
		{
			Name:        "XMR Sticker Pack",
			Description: "Lot de 10 stickers Monero haute qualité.",
			PriceXMR:    decimal.RequireFromString("0.0005"),
			ImageURL:    "https://i.imgur.com/stickers.jpg",
			IsAvailable: true,
		},
	}

	if err := db.Create(&samples).Error; err != nil {
		return err
	}
	log.Println("✅ Produits d'exemple insérés")
	return nil
}
