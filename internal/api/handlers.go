// Package api exposes the MCP endpoint and a read-only device API over HTTP.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ravipendurty/netmiko-mcp-server/internal/audit"
	"github.com/ravipendurty/netmiko-mcp-server/internal/mcp"
	"github.com/ravipendurty/netmiko-mcp-server/internal/session"
	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

const maxMCPBody = 4 << 20

// Handler contains all HTTP handlers
type Handler struct {
	manager  *session.Manager
	mcp      *mcp.Server
	auditSvc *audit.Service
	version  string
	logger   *zap.Logger
}

// NewHandler creates a new API handler. auditSvc may be nil.
func NewHandler(manager *session.Manager, mcpServer *mcp.Server, auditSvc *audit.Service, version string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		manager:  manager,
		mcp:      mcpServer,
		auditSvc: auditSvc,
		version:  version,
		logger:   logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.HealthCheck)
	e.POST("/mcp", h.HandleMCP)

	v1 := e.Group("/api/v1")

	devices := v1.Group("/devices")
	devices.GET("", h.ListDevices)
	devices.GET("/:id", h.GetDevice)

	auditGroup := v1.Group("/audit")
	auditGroup.GET("/events", h.ListAuditEvents)
	auditGroup.POST("/verify", h.VerifyAuditChain)
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"timestamp":         time.Now().UTC(),
		"version":           h.version,
		"connected_devices": h.manager.Registry().ConnectedCount(),
	})
}

// HandleMCP serves one JSON-RPC message per request
func (h *Handler) HandleMCP(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxMCPBody))
	if err != nil {
		return h.errorResponse(c, http.StatusBadRequest, models.CodeInvalidArgument, "failed to read request body")
	}

	resp := h.mcp.HandleMessage(c.Request().Context(), mcp.TransportHTTP, body)
	if resp == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListDevices lists every known device with its connection state
func (h *Handler) ListDevices(c echo.Context) error {
	devices := h.manager.ListResources()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   len(devices),
	})
}

// GetDevice describes one known device
func (h *Handler) GetDevice(c echo.Context) error {
	id := c.Param("id")
	device, err := h.manager.ReadResource(id)
	if err != nil {
		if errors.Is(err, models.ErrDeviceNotFound) {
			return c.JSON(http.StatusNotFound, models.NewDeviceNotFoundError(id).WithRequestID(requestID(c)))
		}
		return h.errorResponse(c, http.StatusInternalServerError, models.CodeInternalError, err.Error())
	}
	return c.JSON(http.StatusOK, device)
}

// ListAuditEvents pages through the audit trail
func (h *Handler) ListAuditEvents(c echo.Context) error {
	if h.auditSvc == nil {
		return h.errorResponse(c, http.StatusNotFound, models.CodeInternalError, "audit trail is disabled")
	}

	query := &models.AuditQuery{
		DeviceID: c.QueryParam("device_id"),
		Result:   models.AuditResult(c.QueryParam("result")),
	}
	if v := c.QueryParam("event_type"); v != "" {
		query.EventTypes = []models.AuditEventType{models.AuditEventType(v)}
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return h.errorResponse(c, http.StatusBadRequest, models.CodeInvalidArgument, "invalid limit")
		}
		query.Limit = limit
	}
	if v := c.QueryParam("offset"); v != "" {
		offset, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return h.errorResponse(c, http.StatusBadRequest, models.CodeInvalidArgument, "invalid offset")
		}
		query.Offset = offset
	}

	events, total, err := h.auditSvc.Query(c.Request().Context(), query)
	if err != nil {
		h.logger.Error("Failed to query audit events", zap.Error(err))
		return h.errorResponse(c, http.StatusInternalServerError, models.CodeInternalError, "failed to query audit events")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

type verifyRequest struct {
	FromSequence int64 `json:"from_sequence"`
	ToSequence   int64 `json:"to_sequence"`
}

// VerifyAuditChain checks the hash chain over a sequence range. Without a
// range the whole chain is verified.
func (h *Handler) VerifyAuditChain(c echo.Context) error {
	if h.auditSvc == nil {
		return h.errorResponse(c, http.StatusNotFound, models.CodeInternalError, "audit trail is disabled")
	}

	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return h.errorResponse(c, http.StatusBadRequest, models.CodeInvalidArgument, "invalid request body")
	}
	if req.FromSequence <= 0 {
		req.FromSequence = 1
	}
	if req.ToSequence <= 0 {
		req.ToSequence = h.auditSvc.Sequence()
	}

	result, err := h.auditSvc.VerifyChain(c.Request().Context(), req.FromSequence, req.ToSequence)
	if err != nil {
		h.logger.Error("Audit chain verification failed", zap.Error(err))
		return h.errorResponse(c, http.StatusInternalServerError, models.CodeInternalError, "failed to verify audit chain")
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) errorResponse(c echo.Context, status int, code models.ErrorCode, message string) error {
	return c.JSON(status, models.NewAPIError(code, message).WithRequestID(requestID(c)))
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
