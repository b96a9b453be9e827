package models

import "time"

// ShippingAddress est une capture figée des six champs collectés par le
// dialogue de checkout. Immuable après création, possédée par sa commande.
type ShippingAddress struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	FullName   string    `json:"full_name" gorm:"not null"`
	Street     string    `json:"street" gorm:"not null"`
	Unit       string    `json:"unit,omitempty"`
	City       string    `json:"city" gorm:"not null"`
	State      string    `json:"state" gorm:"not null"`
	PostalCode string    `json:"postal_code" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}
