package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	models "FinPulse/internal/domain/models"
	"FinPulse/internal/scheduler"
	xhttp "FinPulse/pkg/http"
	xlogger "FinPulse/pkg/logger"
)

// Monitor is the part of the scheduler the status API reads and drives.
type Monitor interface {
	Phase() models.Phase
	Busy() bool
	LastReport() *models.TickReport
	RecentAlerts(limit int) []models.Alert
	Triggers() []scheduler.TriggerStatus
	Trigger(name string) (string, error)
}

type StatusResponse struct {
	Phase    models.Phase              `json:"phase"`
	Busy     bool                      `json:"busy"`
	LastTick *models.TickReport        `json:"last_tick,omitempty"`
	Triggers []scheduler.TriggerStatus `json:"triggers"`
}

type TickAccepted struct {
	TickID  string `json:"tick_id"`
	Trigger string `json:"trigger"`
}

// StatusEchoHandler serves health, status and manual ticks.
type StatusEchoHandler struct {
	logger *xlogger.Logger
	mon    Monitor
}

func NewStatusEchoHandler(logger *xlogger.Logger, mon Monitor) *StatusEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &StatusEchoHandler{logger: logger, mon: mon}
}

func (h *StatusEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/alerts", h.Alerts)
	g.POST("/ticks", h.StartTick)
}

func (h *StatusEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *StatusEchoHandler) Status(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, StatusResponse{
		Phase:    h.mon.Phase(),
		Busy:     h.mon.Busy(),
		LastTick: h.mon.LastReport(),
		Triggers: h.mon.Triggers(),
	})
}

func (h *StatusEchoHandler) Alerts(c echo.Context) error {
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.mon.RecentAlerts(req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *StatusEchoHandler) StartTick(c echo.Context) error {
	req := &models.TickRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	id, err := h.mon.Trigger(req.Trigger)
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		return xhttp.AppErrorResponse(c, xhttp.ConflictErrorf("a tick is already running"))
	case errors.Is(err, scheduler.ErrNotRunning):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_UNAVAILABLE", "", "scheduler is not running", http.StatusServiceUnavailable))
	case err != nil:
		h.logger.Error("manual tick failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Info("manual tick started", xlogger.String("tick_id", id), xlogger.String("trigger", req.Trigger))
	return xhttp.AcceptedResponse(c, TickAccepted{TickID: id, Trigger: req.Trigger})
}
