package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"xmr_shop_back_end/internal/handlers"
	"xmr_shop_back_end/internal/middleware"
)

func RegisterRoutes(r *gin.Engine, actions *handlers.ActionHandlers, admin *handlers.AdminHandlers) {
	r.Use(cors.Default())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Frontière d'actions : une route POST par action du bot, réservée à la
	// passerelle chat authentifiée.
	botAPI := r.Group("/api/bot", middleware.GatewayAuthRequired())
	{
		botAPI.POST("/start", actions.Start)
		botAPI.POST("/products", actions.ListProducts)
		botAPI.POST("/cart/view", actions.ViewCart)
		botAPI.POST("/cart/add", actions.AddToCart)
		botAPI.POST("/cart/clear", actions.ClearCart)
		botAPI.POST("/checkout/begin", actions.BeginCheckout)
		botAPI.POST("/message", actions.SubmitText)
		botAPI.POST("/payment/check", actions.CheckPayment)
		botAPI.POST("/orders", actions.MyOrders)
		botAPI.POST("/cancel", actions.Cancel)
	}

	adminAPI := r.Group("/api/admin", middleware.GatewayAuthRequired(), handlers.AdminRequired())
	{
		adminAPI.GET("/products", admin.ListProducts)
		adminAPI.POST("/products", admin.CreateProduct)
		adminAPI.PATCH("/products/:id", admin.UpdateProduct)
		adminAPI.DELETE("/products/:id", admin.DeleteProduct)
		adminAPI.GET("/wallet/balance", admin.WalletBalance)
	}
}
