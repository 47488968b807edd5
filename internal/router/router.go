// Package router assembles the gin engine used by the API server.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"meikon/internal/billing"
	"meikon/internal/config"
	_ "meikon/internal/docs" // swagger spec
	"meikon/internal/handlers"
	"meikon/internal/middleware"
	"meikon/internal/services"
)

// Options configure authentication and CORS for the engine.
type Options struct {
	JWTSecret      string
	OperatorAPIKey string
	AllowedOrigin  string
}

// Services are the application services the routes dispatch to.
type Services struct {
	Transactions  services.TransactionServicer
	Products      services.ProductServicer
	Goals         services.GoalServicer
	Revenue       services.RevenueServicer
	Subscriptions services.SubscriptionServicer
	Checkout      services.CheckoutServicer
	Audit         services.AuditServicer
}

// NewServices builds every service over db. A nil gateway leaves that
// provider unconfigured.
func NewServices(db *gorm.DB, cfg *config.Config, stripe billing.StripeGateway, mp billing.MercadoPagoClient) Services {
	audit := services.NewAuditService(db)
	return Services{
		Transactions:  services.NewTransactionService(db, cfg.FreePlanTransactionLimit),
		Products:      services.NewProductService(db),
		Goals:         services.NewGoalService(db),
		Revenue:       services.NewRevenueService(db),
		Subscriptions: services.NewSubscriptionService(db, stripe, mp, audit),
		Checkout: services.NewCheckoutService(db, stripe, mp, services.CheckoutOptions{
			AppURL:        cfg.AppURL,
			StripePriceID: cfg.Stripe.PriceID,
			TrialDays:     cfg.TrialDays,
			ProPlanPrice:  cfg.ProPlanPrice,
		}),
		Audit: audit,
	}
}

// New returns the engine with every route registered.
func New(opts Options, svc Services) *gin.Engine {
	transactionHandler := handlers.NewTransactionHandler(svc.Transactions, svc.Audit)
	productHandler := handlers.NewProductHandler(svc.Products, svc.Audit)
	goalHandler := handlers.NewGoalHandler(svc.Goals, svc.Audit)
	revenueHandler := handlers.NewRevenueHandler(svc.Revenue)
	subscriptionHandler := handlers.NewSubscriptionHandler(svc.Subscriptions, svc.Checkout)
	webhookHandler := handlers.NewWebhookHandler(svc.Subscriptions)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(cors(opts.AllowedOrigin))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Provider callbacks authenticate by signature or by re-fetching the resource.
	webhooks := v1.Group("/webhooks")
	webhooks.POST("/stripe", webhookHandler.Stripe)
	webhooks.POST("/mercadopago", webhookHandler.MercadoPago)

	internal := v1.Group("/internal")
	internal.Use(middleware.OperatorAuthMiddleware(opts.OperatorAPIKey))
	internal.GET("/subscriptions", subscriptionHandler.ListSubscriptions)
	internal.POST("/mercadopago/preapprovals/:id/sync", subscriptionHandler.SyncMercadoPagoPreapproval)

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(opts.JWTSecret))

	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.POST("/bulk", transactionHandler.BulkCreateTransactions)
	transactions.GET("", transactionHandler.GetUserTransactions)
	transactions.GET("/:id", transactionHandler.GetTransactionByID)
	transactions.PUT("/:id", transactionHandler.UpdateTransaction)
	transactions.DELETE("/:id", transactionHandler.DeleteTransaction)

	products := protected.Group("/products")
	products.POST("", productHandler.CreateProduct)
	products.GET("", productHandler.GetUserProducts)
	products.GET("/:id", productHandler.GetProductByID)
	products.PUT("/:id", productHandler.UpdateProduct)
	products.DELETE("/:id", productHandler.DeleteProduct)
	products.GET("/:id/movements", productHandler.GetStockMovements)

	goals := protected.Group("/goals")
	goals.PUT("", goalHandler.UpsertGoal)
	goals.GET("/:year/:month", goalHandler.GetGoalProgress)

	protected.GET("/revenue/cap", revenueHandler.GetRevenueCap)

	protected.GET("/subscription", subscriptionHandler.GetSubscription)
	protected.POST("/checkout/stripe", subscriptionHandler.StartStripeCheckout)
	protected.POST("/checkout/mercadopago", subscriptionHandler.StartMercadoPagoCheckout)

	return router
}

func cors(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
