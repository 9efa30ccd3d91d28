package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/storeorders/api/internal/cache"
	"github.com/storeorders/api/internal/config"
	"github.com/storeorders/api/internal/dashboard"
	"github.com/storeorders/api/internal/database"
	"github.com/storeorders/api/internal/enum"
	"github.com/storeorders/api/internal/fulfillment"
	"github.com/storeorders/api/internal/handler"
	mw "github.com/storeorders/api/internal/middleware"
	"github.com/storeorders/api/internal/service"
	"github.com/storeorders/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication, store scoping, and role-based middleware as needed.
// Order lifecycle events are reported to poller, which forwards them to
// WebSocket viewers and refreshes the board.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, poller *dashboard.Poller, productCache cache.Cache) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// --- Services ---

	trackers := fulfillment.NewRegistry()

	submissionService := service.NewSubmissionService(pool, func(db database.DBTX) service.SubmissionStore {
		return database.New(db)
	}, cfg.MaxItemQuantity)
	submissionService.SetNotifier(poller)

	lifecycleService := service.NewLifecycleService(pool, pool, func(db database.DBTX) service.LifecycleStore {
		return database.New(db)
	}, trackers)
	lifecycleService.SetNotifier(poller)

	accumulationService := service.NewAccumulationService(queries)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public, rate limited per client IP)
	loginLimiter := mw.NewRateLimiter(cfg.LoginRatePerMinute)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret, cfg.TokenTTL)
	r.Group(func(r chi.Router) {
		r.Use(loginLimiter.Limit)
		authHandler.RegisterRoutes(r)
	})

	storeHandler := handler.NewStoreHandler(queries)
	storeHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	dashboardFeed := ws.Subscription{
		Room:     enum.RoomDashboard,
		Roles:    []string{enum.RoleAdmin, enum.RoleWarehouse, enum.RoleDashboard},
		Greeting: poller.Greeting,
	}
	r.Get("/ws/dashboard", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, dashboardFeed, w, r)
	})
	warehouseFeed := ws.Subscription{
		Room:  enum.RoomWarehouse,
		Roles: []string{enum.RoleAdmin, enum.RoleWarehouse},
	}
	r.Get("/ws/warehouse", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, warehouseFeed, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Catalog: reads for everyone, writes for ADMIN
		productHandler := handler.NewProductHandler(queries, productCache)
		r.Route("/products", func(r chi.Router) {
			productHandler.RegisterRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.RoleAdmin))
				productHandler.RegisterAdminRoutes(r)
			})
		})

		// Store-scoped routes
		r.Route("/stores/{sid}", func(r chi.Router) {
			r.Use(mw.RequireStore)

			storeOrderHandler := handler.NewStoreOrderHandler(submissionService, queries)
			r.Route("/orders", storeOrderHandler.RegisterRoutes)
		})

		// Warehouse and admin order screens
		r.Route("/orders", func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleAdmin, enum.RoleWarehouse))

			reportsHandler := handler.NewReportsHandler(accumulationService)
			reportsHandler.RegisterRoutes(r)

			orderHandler := handler.NewOrderHandler(lifecycleService, queries, cfg.WarehouseClosedWindow)
			orderHandler.RegisterRoutes(r)
		})

		// TV dashboard
		r.Route("/dashboard", func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleAdmin, enum.RoleWarehouse, enum.RoleDashboard))
			dashboardHandler := handler.NewDashboardHandler(poller.Board())
			dashboardHandler.RegisterRoutes(r)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
