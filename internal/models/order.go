package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statuts de commande. pending → confirmed et pending → expired sont les
// seules transitions possibles ; confirmed et expired sont terminaux.
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusExpired   = "expired"
)

type Order struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	Reference string `json:"reference" gorm:"uniqueIndex;not null"`
	UserID    uint   `json:"user_id" gorm:"index;not null"`

	// Total figé au moment de la création, jamais recalculé ensuite.
	TotalAmountXMR decimal.Decimal `json:"total_amount_xmr" gorm:"type:numeric;not null"`

	// Identité de paiement émise par le wallet RPC.
	PaymentAddress string `json:"payment_address" gorm:"not null"`
	PaymentID      string `json:"payment_id" gorm:"index;not null"`
	PaymentURI     string `json:"payment_uri,omitempty"`

	Status string `json:"status" gorm:"index;not null;default:pending"`

	ShippingAddressID uint            `json:"-"`
	ShippingAddress   ShippingAddress `json:"shipping_address" gorm:"foreignKey:ShippingAddressID;constraint:OnDelete:CASCADE"`
	Items             []OrderItem     `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"index"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// OrderItem copie nom et prix unitaire au moment de la commande : un
// changement de prix produit ultérieur ne modifie jamais une commande passée.
type OrderItem struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	OrderID      uint            `json:"order_id" gorm:"index;not null"`
	ProductID    uint            `json:"product_id" gorm:"not null"`
	Name         string          `json:"name" gorm:"not null"`
	Quantity     int             `json:"quantity" gorm:"not null"`
	UnitPriceXMR decimal.Decimal `json:"unit_price_xmr" gorm:"type:numeric;not null"`
}
