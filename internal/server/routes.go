package server

import (
	"net/http"
	"time"

	"github.com/berfenger/exportlimit/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type limitStateBody struct {
	LastAppliedW *float64 `json:"last_applied_w"`
	TargetW      *float64 `json:"target_w"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/limit", s.LimitStateHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.controlActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) LimitStateHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.controlActor, domain.GetLimitStateRequest{}, 2*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "limit: unavailable")
	}
	response, ok := res.(domain.GetLimitStateResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "limit: unexpected response")
	}
	body := limitStateBody{}
	if response.State.Known {
		body.LastAppliedW = &response.State.LastAppliedW
		body.TargetW = &response.State.TargetW
	}
	return c.JSON(http.StatusOK, body)
}
