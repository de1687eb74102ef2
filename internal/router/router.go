package router

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sugang/internal/auth"
	"sugang/internal/config"
	"sugang/internal/errors"
	"sugang/internal/handler"
	"sugang/internal/metrics"
)

// Handlers groups everything Register mounts.
type Handlers struct {
	Auth     *handler.AuthHandler
	Setting  *handler.SettingHandler
	Sugang   *handler.SugangHandler
	User     *handler.UserHandler
	Sessions handler.SessionStore
	// Health reports readiness of the backing stores. Nil means always healthy.
	Health func(echo.Context) error
}

// Register wires routes and middleware.
func Register(e *echo.Echo, cfg *config.Config, log *zap.Logger, h Handlers) {
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(middleware.RequestLoggerWithConfig(requestLoggerConfig(log)))
	e.Use(middleware.Recover())

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	e.GET("/healthz", func(c echo.Context) error {
		if h.Health != nil {
			if err := h.Health(c); err != nil {
				return c.String(http.StatusServiceUnavailable, err.Error())
			}
		}
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", metrics.Handler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Public routes
	loginLimiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.Auth.LoginRateLimit),
			Burst:     cfg.Auth.LoginBurst,
			ExpiresIn: 3 * time.Minute,
		}),
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, errors.ErrorResponse{
				Error: "too many login attempts",
				Code:  "RATE_LIMITED",
			})
		},
	})
	e.POST("/register", h.Auth.Register, loginLimiter)
	e.POST("/login", h.Auth.Login, loginLimiter)

	// Secured routes (require a session token)
	requireToken := JWTMiddleware(cfg.Auth.JWTSecret)
	requireSession := handler.SessionMiddleware(h.Sessions, log)

	e.POST("/logout", h.Auth.Logout, requireToken)
	e.GET("/me", h.User.GetMe, requireToken, requireSession)

	setting := e.Group("/setting", requireToken, requireSession)
	setting.GET("", h.Setting.GetSetting)
	setting.POST("/course", h.Setting.CreateCourse)
	setting.PUT("/course/:id", h.Setting.UpdateCourse)
	setting.DELETE("/course/:id", h.Setting.DeleteCourse)
	setting.POST("/env", h.Setting.SaveEnvironment)

	sugang := e.Group("/sugang", requireToken, requireSession)
	sugang.GET("", h.Sugang.GetSugang)
	sugang.POST("/apply", h.Sugang.Apply)
	sugang.POST("/delete", h.Sugang.Remove)
}

// JWTMiddleware accepts the session token from a bearer header or the session cookie.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(secret),
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ,cookie:" + handler.SessionCookieName,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(auth.Claims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, errors.ErrorResponse{
				Error: "missing or invalid session",
				Code:  "UNAUTHORIZED",
			})
		},
	})
}

func requestLoggerConfig(log *zap.Logger) middleware.RequestLoggerConfig {
	return middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request_id", v.RequestID),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				log.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	}
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
