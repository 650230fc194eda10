// routes.go - Route registration helpers
package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/viewheel/backend/internal/config"
	"github.com/viewheel/backend/internal/token"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Deliverer Deliverer
	Solana    config.SolanaConfig
	Chain     token.Chain
	Reader    *token.Reader
	Version   string
	Logger    *slog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Upload   UploadHandler
	Checkout CheckoutHandler
	Progress ProgressStreamer
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	h := &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.Deliverer.Configured),
		Upload:   NewUploadHandler(deps.Deliverer, deps.Logger),
		Progress: NewProgressHandler(deps.Deliverer, deps.Logger),
	}
	if deps.Chain != nil {
		h.Checkout = NewCheckoutHandler(deps.Solana, deps.Chain, deps.Reader, deps.Logger)
	}
	return h
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	api := e.Group("/api")

	api.GET("/health", handlers.Health.HandleHealth)

	api.POST("/drive-upload", handlers.Upload.HandleDriveUpload)
	api.GET("/uploads/:jobId", handlers.Upload.HandleGetJob)
	api.GET("/submissions", handlers.Upload.HandleListSubmissions)
	api.GET("/submissions/:tx", handlers.Upload.HandleGetSubmission)
	api.GET("/ws/progress", handlers.Progress.HandleProgress)

	if handlers.Checkout != nil {
		api.GET("/checkout/quote", handlers.Checkout.HandleQuote)
	}
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
