package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coreybb/chatshop/models"
	rh "github.com/coreybb/chatshop/route-handlers"
	"github.com/coreybb/chatshop/webhooks"
	"github.com/coreybb/chatshop/webutil"
)

const (
	apiBasePath        = "/api"
	chatsBasePath      = "/chats"
	ordersBasePath     = "/orders"
	categoriesBasePath = "/categories"
	productsBasePath   = "/products"

	webhooksBasePath = "/webhooks"
	billingBasePath  = "/billing"

	messagesSubPath = "/messages"
	productsSubPath = "/products"
)

const (
	paramID = "id"
)

func SetupRoutes(
	chatHandler *rh.ChatHandler,
	orderHandler *rh.OrderHandler,
	catalogHandler *rh.CatalogHandler,
	platformHandler *webhooks.PlatformHandler,
	billingHandler *webhooks.BillingHandler,
) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route(apiBasePath, func(r chi.Router) {
		r.Use(SetHeader(webutil.HeaderContentType, webutil.ContentTypeJSONUTF8))
		configureChatRoutes(r, chatHandler)
		configureOrderRoutes(r, orderHandler)
		configureCatalogRoutes(r, catalogHandler)
	})

	r.Route(webhooksBasePath, func(r chi.Router) {
		r.Post("/ok", platformHandler.Handle(models.BotTypeOK))
		r.Post("/jivosite", platformHandler.Handle(models.BotTypeJivosite))
	})

	r.Route(billingBasePath, func(r chi.Router) {
		r.Post("/paypal", billingHandler.Handle(models.PaymentSystemPaypal))
		r.Post("/stripe", billingHandler.Handle(models.PaymentSystemStripe))
		r.Get("/stripe_redirect/{sessionID}", billingHandler.StripeRedirect)
		r.Get("/stripe_success/{orderID}", billingHandler.StripeSuccess)
		r.Get("/stripe_cancel/{orderID}", billingHandler.StripeCancel)
	})

	// Health check endpoint
	r.Get("/healthz", handleHealthCheck)

	return r
}

// Helper for constructing paths with a parameter
func pathWithParam(basePath string, paramName string) string {
	if basePath == "" {
		return "/{" + paramName + "}"
	}
	return basePath + "/{" + paramName + "}"
}

// --- Chat Routes ---
func configureChatRoutes(r chi.Router, handler *rh.ChatHandler) {
	specificChatPath := pathWithParam("", paramID)

	r.Route(chatsBasePath, func(r chi.Router) {
		r.Get("/", webutil.MakeHandler(handler.HandleGetChats))
		r.Route(specificChatPath, func(r chi.Router) {
			r.Get(messagesSubPath, webutil.MakeHandler(handler.HandleGetChatMessages)) // GET /chats/{id}/messages
		})
	})
}

// --- Order Routes ---
func configureOrderRoutes(r chi.Router, handler *rh.OrderHandler) {
	r.Get(pathWithParam(ordersBasePath, paramID), webutil.MakeHandler(handler.HandleGetOrder))
}

// --- Catalog Routes ---
func configureCatalogRoutes(r chi.Router, handler *rh.CatalogHandler) {
	specificCategoryPath := pathWithParam("", paramID)

	r.Route(categoriesBasePath, func(r chi.Router) {
		r.Get("/", webutil.MakeHandler(handler.HandleGetCategories))
		r.Route(specificCategoryPath, func(r chi.Router) {
			r.Get(productsSubPath, webutil.MakeHandler(handler.HandleGetCategoryProducts)) // GET /categories/{id}/products
		})
	})
	r.Get(pathWithParam(productsBasePath, paramID), webutil.MakeHandler(handler.HandleGetProduct))
}

// --- Utility Functions ---

// handleHealthCheck responds to a health check request.
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(webutil.HeaderContentType, webutil.ContentTypeTextPlainUTF8)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// SetHeader is a middleware to set a response header.
func SetHeader(key, value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(key, value)
			next.ServeHTTP(w, r)
		})
	}
}
