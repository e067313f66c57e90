package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/TimeKeeper/internal/middleware"
	"github.com/atinyakov/TimeKeeper/internal/remote"
)

// NewRouter mounts the stand-in endpoints.
//
// Routes:
//
//	HEAD|GET /                              → reachability probe
//	POST /services/oauth2/v1/token          → tokenHandler.Token
//	GET  /services/rest/record/v1/project   → recordHandler.ListProjects (bearer)
//	POST /services/rest/record/v1/timeentry → recordHandler.CreateTimeEntry (bearer)
//	GET|POST /app/site/hosting/restlet.nl   → restletHandler (OAuth signature)
func NewRouter(
	tokenHandler *TokenHandler,
	recordHandler *RecordHandler,
	restletHandler *RestletHandler,
	bearerAuth func(http.Handler) http.Handler,
	oauthAuth func(http.Handler) http.Handler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))

	alive := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	r.Head("/", alive)
	r.Get("/", alive)

	r.With(chiMiddleware.AllowContentType("application/x-www-form-urlencoded")).
		Post(remote.TokenPath, tokenHandler.Token)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth)
		r.Use(chiMiddleware.AllowContentType("application/json"))
		r.Get(remote.ProjectPath, recordHandler.ListProjects)
		r.Post(remote.TimeEntryPath, recordHandler.CreateTimeEntry)
	})

	r.Group(func(r chi.Router) {
		r.Use(oauthAuth)
		r.Use(chiMiddleware.AllowContentType("application/json"))
		r.Get(remote.RestletPath, restletHandler.Get)
		r.Post(remote.RestletPath, restletHandler.Post)
	})

	return r
}
