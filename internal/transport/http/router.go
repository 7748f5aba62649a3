package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/school-api-nosql/internal/application/auth"
	"github.com/school-api-nosql/internal/application/class"
	"github.com/school-api-nosql/internal/application/notification"
	"github.com/school-api-nosql/internal/application/user"
	"github.com/school-api-nosql/internal/config"
	"github.com/school-api-nosql/internal/domain"
	"github.com/school-api-nosql/internal/transport/http/handler"
	appmiddleware "github.com/school-api-nosql/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	userSvc := user.NewService(deps.UserRepo)
	// Pass an untyped nil when no provider is configured so the service's
	// nil check works.
	authSvc := auth.NewService(deps.UserRepo, nil)
	if deps.JWTProvider != nil {
		authSvc = auth.NewService(deps.UserRepo, deps.JWTProvider)
	}
	classSvc := class.NewService(class.ServiceDeps{
		ClassRepo:      deps.ClassRepo,
		MembershipRepo: deps.MembershipRepo,
		UserRepo:       deps.UserRepo,
	})
	notifSvc := notification.NewService(notification.ServiceDeps{
		NotificationRepo: deps.NotificationRepo,
		TargetRepo:       deps.TargetRepo,
		UserRepo:         deps.UserRepo,
		ClassRepo:        deps.ClassRepo,
		MembershipRepo:   deps.MembershipRepo,
	})

	healthH := handler.NewHealthHandler()
	userH := handler.NewUserHandler(userSvc)
	sessionH := handler.NewSessionHandler(authSvc)
	classH := handler.NewClassHandler(classSvc)
	notifH := handler.NewNotificationHandler(notifSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/users", userH.Register)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/users/{id}", userH.Get)

			r.Get("/classes/{id}", classH.Get)
			r.Get("/classes/{id}/members", classH.Members)
			r.Get("/notifications/{id}", notifH.Get)
			r.Get("/notifications/class/{id}/recent", notifH.RecentForClass)
			r.Get("/notifications/upcoming", notifH.Upcoming)
			r.Post("/notifications/sweep-expired", notifH.SweepExpired)

			// Student-only routes
			r.With(appmiddleware.RequireRole(domain.RoleStudent)).
				Get("/notifications/student/feed", notifH.Feed)

			// Teacher-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleTeacher))

				r.Post("/classes", classH.Create)
				r.Get("/classes/mine", classH.ListMine)
				r.Post("/classes/{id}/members", classH.Enroll)

				r.Post("/notifications", notifH.Create)
				r.Put("/notifications/{id}", notifH.Update)
				r.Delete("/notifications/{id}", notifH.Delete)
				r.Get("/notifications/teacher/mine", notifH.ListMine)
				r.Get("/notifications/teacher/statistics", notifH.Statistics)
			})
		})
	})

	return r
}
