package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Constantes de conception du cycle de vie des commandes.
const (
	// PaymentTimeout : fenêtre de paiement avant expiration d'une commande.
	PaymentTimeout = 30 * time.Minute

	// ConfirmationsRequired : seuil de finalité pour confirmer un paiement.
	ConfirmationsRequired = 10

	// ReaperInterval : période du balayage des commandes en attente expirées.
	ReaperInterval = 5 * time.Minute

	// DialogueStaleAfter : un dialogue de checkout inactif plus longtemps
	// est traité comme une annulation implicite.
	DialogueStaleAfter = time.Hour

	// Rate limiting par utilisateur (fenêtre glissante).
	RateLimitMaxCalls = 10
	RateLimitPeriod   = 60 * time.Second

	// RPCTimeout borne chaque appel sortant vers le wallet RPC.
	RPCTimeout = 30 * time.Second
)

func Load() {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("⚠️  Aucun fichier .env trouvé — on continue avec les variables d'environnement du système")
	} else {
		log.Println("✅ Fichier .env chargé avec succès")
	}
}

// Getenv retourne la variable d'environnement ou une valeur par défaut.
func Getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// AdminIDs parse ADMIN_IDS (liste d'identifiants Telegram séparés par des virgules).
func AdminIDs() []int64 {
	raw := os.Getenv("ADMIN_IDS")
	if raw == "" {
		return nil
	}

	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("⚠️  ADMIN_IDS contient une valeur invalide: %q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// IsAdmin vérifie si un identifiant Telegram figure dans ADMIN_IDS.
func IsAdmin(telegramID int64) bool {
	for _, id := range AdminIDs() {
		if id == telegramID {
			return true
		}
	}
	return false
}
