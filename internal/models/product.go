package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	Name        string          `json:"name" gorm:"not null"`
	Description string          `json:"description"`
	PriceXMR    decimal.Decimal `json:"price_xmr" gorm:"type:numeric;not null"`
	ImageURL    string          `json:"image_url,omitempty"`
	IsAvailable bool            `json:"is_available" gorm:"default:true"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
