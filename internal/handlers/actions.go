package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"xmr_shop_back_end/internal/bot"
)

// ActionHandlers adapte les actions du bot en routes HTTP pour la
// passerelle chat. Adaptateurs fins : aucune logique métier ici, le bot ne
// voit jamais gin.
type ActionHandlers struct {
	Bot *bot.Bot
}

type actionRequest struct {
	TelegramID int64  `json:"telegram_id" binding:"required"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	ProductID  uint   `json:"product_id"`
	OrderRef   string `json:"order_ref"`
	Text       string `json:"text"`
}

func bindAction(c *gin.Context) (*actionRequest, bool) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return nil, false
	}
	return &req, true
}

func (h *ActionHandlers) Start(c *gin.Context) {
	req, ok := bindAction(c)
	if !ok {
		return
	}
	reply := h.Bot.Start(c.Request.Context(), req.TelegramID, bot.Profile{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	c.JSON(http.StatusOK, reply)
}

func (h *ActionHandlers) ListProducts(c *gin.Context) {
	req, ok := bindAction(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.Bot.ListProducts(c.Request.Context(), req.TelegramID))
}

func (h *ActionHandlers) ViewCart(c *gin.Context) {
	req, ok := bindAction(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.Bot.ViewCart(c.Request.Context(), req.TelegramID))
}

func (h *ActionHandlers) AddToCart(c *gin.Context) {
	req, ok := bindAction(c)
	if !ok {
		return
	}
	if req.ProductID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_id requis"})
		return
	}
	c.JSON(http.StatusOK, h.Bot.AddToCart(c.Request.Context(), req.TelegramID, req.ProductID))
}

func (h *ActionHandlers) ClearCart(c *gin.Context) {
	req, ok := bindAction(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.Bot.ClearCart(c.Request.Context(), req.TelegramID))
}

func (h *ActionHandlers) BeginCheckout(c *gin.Context) {
	req, ok := bindAction(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.Bot.BeginCheckout(c.Request.Context(), req.TelegramID))
}

func (h *ActionHandlers) SubmitText(c *gin.Context) {
	req, ok := bindAction(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.Bot.SubmitText(c.Request.Context(), req.TelegramID, req.Text))
}

func (h *ActionHandlers) CheckPayment(c *gin.Context) {
	req, ok := bindAction(c)
	if !ok {
		return
	}
	if req.OrderRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_ref requis"})
		return
	}
	c.JSON(http.StatusOK, h.Bot.CheckPayment(c.Request.Context(), req.TelegramID, req.OrderRef))
}

func (h *ActionHandlers) MyOrders(c *gin.Context) {
	req, ok := bindAction(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.Bot.MyOrders(c.Request.Context(), req.TelegramID))
}

func (h *ActionHandlers) Cancel(c *gin.Context) {
	req, ok := bindAction(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.Bot.Cancel(c.Request.Context(), req.TelegramID))
}
