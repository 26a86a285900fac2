// Package router assembles the echo server: middleware, error handling and
// every route the service exposes.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dukerupert/mesa/internal/handler"
	"github.com/dukerupert/mesa/internal/handler/api"
	"github.com/dukerupert/mesa/internal/handler/webhook"
	"github.com/dukerupert/mesa/internal/middleware"
)

// Deps holds everything the routes need.
type Deps struct {
	Logger   zerolog.Logger
	Gatherer prometheus.Gatherer
	Metrics  *middleware.Metrics

	Webhook *webhook.StripeHandler
	Billing *api.BillingHandler

	// Ready reports whether dependencies are reachable. Nil means always ready.
	Ready func(c echo.Context) error
}

// New returns a configured echo instance.
func New(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(deps.Logger))
	if deps.Metrics != nil {
		e.Use(deps.Metrics.Middleware())
	}

	e.GET("/healthz", healthz(deps.Ready))
	if deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	if deps.Webhook != nil {
		e.Any("/webhooks/stripe", deps.Webhook.HandleWebhook)
	}

	if deps.Billing != nil {
		tenants := e.Group("/api/tenants/:tenant_id")
		tenants.POST("/checkout", deps.Billing.CreateCheckout)
		tenants.POST("/portal", deps.Billing.CreatePortal)
	}

	return e
}

func healthz(ready func(c echo.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ready != nil {
			if err := ready(c); err != nil {
				zerolog.Ctx(c.Request().Context()).Warn().Err(err).Msg("readiness check failed")
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
