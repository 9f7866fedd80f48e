// Package server assembles the echo instance shared by the interchange API:
// middleware order, JSON codec, error rendering and the health endpoint.
package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/interchange/internal/platform/auth"
	"github.com/ehr/interchange/internal/platform/middleware"
)

// APIPrefix is the route group every interchange endpoint lives under.
const APIPrefix = "/api/v1"

// Options configures New.
type Options struct {
	Logger zerolog.Logger
	// Dev enables the permissive development authenticator.
	Dev            bool
	Auth           auth.JWTConfig
	BodyLimit      string
	RequestTimeout time.Duration
	RateLimit      middleware.RateLimitConfig
	CORSOrigins    []string
}

// Server is the configured echo instance and its API route group.
type Server struct {
	Echo *echo.Echo
	API  *echo.Group
}

// New builds the echo instance with the full middleware chain and GET /health.
func New(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = JSONSerializer{}
	e.HTTPErrorHandler = ErrorHandler(opts.Logger)

	e.Use(middleware.Recovery(opts.Logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(opts.Logger))
	if len(opts.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: opts.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		}))
	}
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(opts.BodyLimit))
	e.Use(middleware.RequestTimeout(opts.RequestTimeout))

	if opts.Dev {
		e.Use(auth.DevAuthMiddleware(opts.Auth))
	} else {
		jwtCfg := opts.Auth
		jwtCfg.Skipper = auth.AuthSkipper
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	rl := opts.RateLimit
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	if rl.KeyFunc == nil {
		rl.KeyFunc = func(c echo.Context) string {
			return auth.Subject(c) + "|" + c.RealIP()
		}
	}
	api := e.Group(APIPrefix, middleware.RateLimit(rl))

	return &Server{Echo: e, API: api}
}
