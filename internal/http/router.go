package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// RouterConfig collects the handlers and middleware mounted under /v1.
type RouterConfig struct {
	Pods      *PodHandler
	Links     *LinkHandler
	Bookings  *BookingHandler
	JWTSecret []byte
	// Limiter throttles the anonymous link endpoints. Nil disables throttling.
	Limiter *RateLimiter
	Logger  *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)
	signedIn := RequireSignedIn(logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(RequestLogger(logger))
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		responder.writeError(w, r, http.StatusNotFound, "NOT_FOUND", nil)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		responder.writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", nil)
	})

	router.Route("/v1", func(v1 chi.Router) {
		v1.Use(Authenticate(cfg.JWTSecret, logger))

		if cfg.Pods != nil {
			v1.Route("/pods", func(pods chi.Router) {
				pods.Use(signedIn)
				pods.Post("/", cfg.Pods.Create)
				pods.Get("/", cfg.Pods.List)
				pods.Get("/invite/{token}", cfg.Pods.Invite)
				pods.Route("/{token}", func(pod chi.Router) {
					pod.Get("/", cfg.Pods.Get)
					pod.Delete("/", cfg.Pods.Delete)
					pod.Post("/invites", cfg.Pods.AddInvites)
					pod.Delete("/invites/{email}", cfg.Pods.RemoveInvite)
					pod.Post("/join", cfg.Pods.Join)
					pod.Post("/hunt", cfg.Pods.StartHunt)
					pod.Post("/rerun", cfg.Pods.RerunHunt)
					pod.Post("/refresh", cfg.Pods.RefreshHunt)
					pod.Post("/close", cfg.Pods.Close)
					pod.Get("/goals", cfg.Pods.ListGoals)
					pod.Post("/goals", cfg.Pods.AddGoal)
					pod.Patch("/goals/{goalID}", cfg.Pods.EditGoal)
					pod.Delete("/goals/{goalID}", cfg.Pods.DeleteGoal)
				})
			})
		}

		if cfg.Links != nil {
			v1.Group(func(public chi.Router) {
				if cfg.Limiter != nil {
					public.Use(cfg.Limiter.Middleware(logger))
				}
				public.Get("/links/{username}", cfg.Links.Resolve)
				public.Post("/links/{username}/book", cfg.Links.Confirm)
				public.Get("/share/{token}", cfg.Links.Resolve)
				public.Post("/share/{token}/book", cfg.Links.Confirm)
			})
			v1.With(signedIn).Post("/share", cfg.Links.IssueShare)
		}

		if cfg.Bookings != nil {
			v1.Route("/bookings/{token}", func(booking chi.Router) {
				booking.Get("/", cfg.Bookings.Get)
				booking.With(signedIn).Post("/reschedule", cfg.Bookings.Reschedule)
				booking.With(signedIn).Post("/cancel", cfg.Bookings.Cancel)
				booking.With(signedIn).Patch("/notes", cfg.Bookings.UpdateNotes)
			})
		}
	})

	return router
}
