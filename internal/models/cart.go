package models

import "time"

// Cart est éphémère : un seul panier par utilisateur, supprimé
// atomiquement quand une commande est créée à partir de son contenu.
type Cart struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	UserID    uint       `json:"user_id" gorm:"uniqueIndex;not null"`
	Items     []CartItem `json:"items" gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartItem référence le produit sans copier son prix : le total du panier
// est toujours recalculé avec les prix courants, contrairement aux commandes.
type CartItem struct {
	ID        uint    `json:"id" gorm:"primaryKey"`
	CartID    uint    `json:"cart_id" gorm:"not null;uniqueIndex:idx_cart_product"`
	ProductID uint    `json:"product_id" gorm:"not null;uniqueIndex:idx_cart_product"`
	Quantity  int     `json:"quantity" gorm:"not null;default:1"`
	Product   Product `json:"product" gorm:"foreignKey:ProductID"`
}
