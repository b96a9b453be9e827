package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment enregistre la transaction on-chain qui a réglé une commande.
// L'index unique sur order_id rend l'insertion idempotente : une commande
// n'accumule jamais deux règlements.
type Payment struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	OrderID       uint            `json:"order_id" gorm:"uniqueIndex;not null"`
	TxHash        string          `json:"tx_hash"`
	AmountXMR     decimal.Decimal `json:"amount_xmr" gorm:"type:numeric;not null"`
	Confirmations int             `json:"confirmations" gorm:"default:0"`
	CreatedAt     time.Time       `json:"created_at"`
}
