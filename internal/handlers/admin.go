package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"xmr_shop_back_end/internal/config"
	"xmr_shop_back_end/internal/models"
	"xmr_shop_back_end/internal/monero"
)

// AdminHandlers : gestion du catalogue et outils wallet, réservés aux
// identifiants listés dans ADMIN_IDS.
type AdminHandlers struct {
	DB     *gorm.DB
	Wallet *monero.Wallet
}

// AdminRequired vérifie que l'appelant agit pour un admin déclaré.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader("X-Admin-Telegram-ID"), 10, 64)
		if err != nil || !config.IsAdmin(id) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Accès refusé"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *AdminHandlers) ListProducts(c *gin.Context) {
	var products []models.Product
	if err := h.DB.Find(&products).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture catalogue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *AdminHandlers) CreateProduct(c *gin.Context) {
	var input struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		PriceXMR    string `json:"price_xmr" binding:"required"`
		ImageURL    string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	price, err := decimal.NewFromString(input.PriceXMR)
	if err != nil || price.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prix invalide"})
		return
	}

	product := models.Product{
		Name:        input.Name,
		Description: input.Description,
		PriceXMR:    price,
		ImageURL:    input.ImageURL,
		IsAvailable: true,
	}
	if err := h.DB.Create(&product).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création produit"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": product})
}

func (h *AdminHandlers) UpdateProduct(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}

	var product models.Product
	if err := h.DB.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture produit"})
		return
	}

	var input struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		PriceXMR    *string `json:"price_xmr"`
		ImageURL    *string `json:"image_url"`
		IsAvailable *bool   `json:"is_available"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.PriceXMR != nil {
		price, err := decimal.NewFromString(*input.PriceXMR)
		if err != nil || price.Sign() <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Prix invalide"})
			return
		}
		// Ne touche que le catalogue : les commandes passées gardent leurs
		// prix figés.
		updates["price_xmr"] = price
	}
	if input.ImageURL != nil {
		updates["image_url"] = *input.ImageURL
	}
	if input.IsAvailable != nil {
		updates["is_available"] = *input.IsAvailable
	}

	if err := h.DB.Model(&product).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour produit"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}

func (h *AdminHandlers) DeleteProduct(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID produit invalide"})
		return
	}

	// Les OrderItems copient nom et prix : supprimer le produit ne corrompt
	// pas l'historique des commandes.
	if err := h.DB.Delete(&models.Product{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur suppression produit"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Produit supprimé"})
}

func (h *AdminHandlers) WalletBalance(c *gin.Context) {
	balance, unlocked, err := h.Wallet.Balance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Wallet injoignable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance_xmr":  balance.String(),
		"unlocked_xmr": unlocked.String(),
	})
}
