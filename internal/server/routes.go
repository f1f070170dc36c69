package server

import (
	"net/http"
	"strings"

	"github.com/berfenger/doorbell2mqtt/internal/config"
	"github.com/berfenger/doorbell2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	DOOR_COMMAND_LOCK   = "lock"
	DOOR_COMMAND_UNLOCK = "unlock"
)

type TelemetryRequest struct {
	Thing string `json:"thing"`
	Value string `json:"value"`
}

type TelemetryResponse struct {
	Sent bool `json:"sent"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)
	e.POST("/telemetry", s.TelemetryHandler)
	e.POST("/door/:command", s.DoorCommandHandler)
	e.POST("/connect", s.ConnectHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.supervisor, domain.ActorHealthRequest{}, s.askTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StatusHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.supervisor, domain.GetStatusRequest{}, s.askTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetStatusResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "unexpected response")
	}
	return c.JSON(http.StatusOK, response.Status)
}

func (s *Server) TelemetryHandler(c echo.Context) error {
	var req TelemetryRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Value) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "value is required")
	}
	return s.publish(c, req.Thing, req.Value)
}

// DoorCommandHandler sends a lock or unlock command as telemetry, the way a
// door key does. Only the companion node owns a door key.
func (s *Server) DoorCommandHandler(c echo.Context) error {
	if s.profile != config.PROFILE_COMPANION {
		return echo.NewHTTPError(http.StatusNotFound, "door commands need the companion profile")
	}
	switch c.Param("command") {
	case DOOR_COMMAND_LOCK:
		return s.publish(c, "", domain.CommandPayload(false))
	case DOOR_COMMAND_UNLOCK:
		return s.publish(c, "", domain.CommandPayload(true))
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "command must be lock or unlock")
	}
}

func (s *Server) ConnectHandler(c echo.Context) error {
	s.rootContext.Send(s.supervisor, domain.StartRequest{})
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) publish(c echo.Context, thing string, value string) error {
	res, err := s.rootContext.RequestFuture(s.supervisor, domain.PublishTelemetryRequest{
		ThingId: thing,
		Value:   value,
	}, s.askTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, _ := res.(domain.PublishTelemetryResponse)
	return c.JSON(http.StatusAccepted, TelemetryResponse{Sent: response.Sent})
}
