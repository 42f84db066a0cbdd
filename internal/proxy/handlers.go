package proxy

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waabox/modeldeck/internal/domain"
)

// ErrorResponse is the JSON body of every non-2xx proxy response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status         string    `json:"status"`
	Host           string    `json:"host"`
	Time           time.Time `json:"time"`
	DeviceSessions int       `json:"device_sessions"`
}

type initiateRequest struct {
	Scope string `json:"scope"`
}

type pollRequest struct {
	SessionID string `json:"session_id"`
}

// Handlers exposes a Service over HTTP.
type Handlers struct {
	svc        *Service
	metrics    *Metrics
	allowScope func(string) bool
	host       string
}

// NewHandlers creates the HTTP handlers. allowScope decides whether a
// client-requested scope override is acceptable; nil rejects every override.
func NewHandlers(svc *Service, metrics *Metrics, allowScope func(string) bool) *Handlers {
	host, _ := os.Hostname()
	return &Handlers{svc: svc, metrics: metrics, allowScope: allowScope, host: host}
}

// RegisterRoutes registers the proxy routes on e.
func (h *Handlers) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/device-flow/initiate", h.Initiate)
	e.POST("/auth/device-flow/poll", h.Poll)
	e.GET("/health", h.Health)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{})))
	}
}

// Initiate handles POST /auth/device-flow/initiate.
func (h *Handlers) Initiate(c echo.Context) error {
	var req initiateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", ErrorDescription: "malformed request body"})
	}
	scope := strings.TrimSpace(req.Scope)
	if scope != "" && (h.allowScope == nil || !h.allowScope(scope)) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_scope", ErrorDescription: "requested scope is not allowed"})
	}

	grant, err := h.svc.Initiate(c.Request().Context(), scope)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "initiation_failed", ErrorDescription: "could not start device flow"})
	}
	return c.JSON(http.StatusOK, grant)
}

// Poll handles POST /auth/device-flow/poll.
func (h *Handlers) Poll(c echo.Context) error {
	var req pollRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", ErrorDescription: "malformed request body"})
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", ErrorDescription: "session_id is required"})
	}

	res, err := h.svc.Poll(c.Request().Context(), req.SessionID)
	if err != nil {
		status, body := pollError(err)
		return c.JSON(status, body)
	}
	return c.JSON(http.StatusOK, res)
}

// Health handles GET /health.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:         "ok",
		Host:           h.host,
		Time:           h.svc.now().UTC(),
		DeviceSessions: h.svc.Store().Len(),
	})
}

func pollError(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "session_not_found", ErrorDescription: "unknown or completed device flow session"}
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusGone, ErrorResponse{Error: "expired_token", ErrorDescription: "the device code has expired"}
	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden, ErrorResponse{Error: "access_denied", ErrorDescription: "the user denied the authorization request"}
	default:
		return http.StatusBadGateway, ErrorResponse{Error: "upstream_error", ErrorDescription: "identity provider request failed"}
	}
}
