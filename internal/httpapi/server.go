// Package httpapi exposes the recovery engine over HTTP with echo.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/middleware"
)

// Options configures the HTTP surface.
type Options struct {
	Engine *goRecover.Engine
	// Captcha, when set, is required on POST /reset.
	Captcha CaptchaVerifier
	// Metrics serves GET /metrics when set.
	Metrics        http.Handler
	Logger         *slog.Logger
	AllowedOrigins []string
	BodyLimit      string
	SecureCookie   bool
}

// New builds the echo instance with middleware and routes.
func New(opts Options) (*echo.Echo, error) {
	if opts.Engine == nil {
		return nil, errors.New("httpapi: engine required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BodyLimit == "" {
		opts.BodyLimit = "64K"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, opts)
	setupRoutes(e, opts)
	return e, nil
}

func setupMiddleware(e *echo.Echo, opts Options) {
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(requestLogger(opts.Logger))
	e.Use(echomw.Secure())
	e.Use(echomw.BodyLimit(opts.BodyLimit))
	if len(opts.AllowedOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     opts.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
			AllowCredentials: true,
		}))
	}
	e.Use(requestContext())
}

func setupRoutes(e *echo.Echo, opts Options) {
	h := &Handlers{
		engine:       opts.Engine,
		captcha:      opts.Captcha,
		logger:       opts.Logger,
		secureCookie: opts.SecureCookie,
	}

	e.GET("/health", h.Health)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	e.POST("/reset", h.CreateReset)
	e.GET("/reset/:uid", h.ViewReset)
	e.PUT("/reset/:uid", h.UpdateReset)
	e.PUT("/reset/:uid/resend", h.ResendReset)
	e.PUT("/reset/:uid/validate", h.ValidateReset)

	pw := e.Group("/password", echo.WrapMiddleware(middleware.RequireReset(opts.Engine)))
	pw.GET("", h.ViewPassword)
	pw.PUT("", h.UpdatePassword)
	pw.PUT("/assess", h.AssessPassword)
}

// requestContext copies the client IP and Accept-Language onto the request
// context for throttling, auditing and message localization.
func requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := goRecover.WithClientIP(c.Request().Context(), c.RealIP())
			if lang := c.Request().Header.Get("Accept-Language"); lang != "" {
				ctx = goRecover.WithLocale(ctx, lang)
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// requestLogger logs requests with slog. Health and metrics scrapes are
// skipped.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		LogRemoteIP: true,
		HandleError: true,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("ip", v.RemoteIP),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				logger.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}
			return nil
		},
	})
}
