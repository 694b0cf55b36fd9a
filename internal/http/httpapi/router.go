package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mediarelay/internal/http/handlers"
	"mediarelay/internal/infra"
	"mediarelay/internal/middleware"
)

// Options carries the cross-cutting settings the router needs.
type Options struct {
	Logger        infra.Logger
	CORSOrigins   []string
	DefaultLocale string
	CountryLookup middleware.CountryLookup
	Tokens        *middleware.Verifier
	RequireAuth   bool
	RateLimit     *middleware.RateLimiter
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/providers", app.Providers)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(opts.Tokens, opts.RequireAuth))
			r.Use(opts.RateLimit.Handler)
			r.Post("/generate-video", app.VideoGenerate)
			r.Post("/video-status", app.VideoStatus)
			r.Get("/video-status/{provider}/*", app.VideoStatusByPath)
			r.Post("/generate-script", app.ScriptGenerate)
			r.Post("/generate-voice", app.VoiceGenerate)
			r.Post("/download-image", app.ImageDownload)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", app.AuthSignUp)
			r.Post("/signin", app.AuthSignIn)
			r.Post("/recover", app.AuthRecover)
			r.Post("/refresh", app.AuthRefresh)
			r.Get("/oauth/{provider}", app.AuthOAuth)

			r.Group(func(r chi.Router) {
				r.Use(middleware.AuthJWT(opts.Tokens, false))
				r.Post("/signout", app.AuthSignOut)
				r.Put("/password", app.AuthUpdatePassword)
				r.Put("/profile", app.AuthUpdateProfile)
				r.Get("/me", app.AuthMe)
			})
		})
	})

	return r
}
