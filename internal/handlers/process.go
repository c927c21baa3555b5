package handlers

import (
	"net/http"
	"strings"

	"smokehouse/internal/models"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK        = "ok"
	statusStarted   = "started"
	statusStopped   = "stopped"
	statusResumed   = "resumed"
	statusManualSet = "manual_set"

	errStartProcess   = "failed to start process"
	errStopProcess    = "failed to stop process"
	errResumeProcess  = "failed to resume process"
	errSetManual      = "failed to apply manual settings"
	errGetState       = "failed to load state"
	errGetDiagnostics = "failed to collect diagnostics"
)

// Respond with a status and include current state if available (best-effort).
func (h *Handler) respondWithStatusAndState(c *gin.Context, status string, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	st, err := h.services.Monitoring.GetState(ctx)
	if err == nil {
		resp["state"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// StartRequest selects the run mode.
type StartRequest struct {
	// Run mode. Allowed: AUTO, MANUAL
	Mode string `json:"mode" binding:"required" example:"AUTO"`
}

// ManualRequest carries the manual-mode values. Out-of-range values are clamped.
type ManualRequest struct {
	SetpointC float64 `json:"tset" binding:"required" example:"80"`
	PowerMode int     `json:"power" binding:"required" example:"2"`
	Smoke     int     `json:"smoke" example:"120"`
	FanMode   int     `json:"fan" example:"1"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Start process
// @Tags         process
// @Accept       json
// @Produce      json
// @Param        body  body      StartRequest  true  "Run mode"
// @Success      200   {object}  map[string]interface{}  "status, mode, state"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/process/start [post]
// @Security     BearerAuth
func (h *Handler) startProcess(c *gin.Context) {
	var req StartRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	var mode models.RunMode
	switch strings.ToUpper(strings.TrimSpace(req.Mode)) {
	case "AUTO":
		mode = models.ModeAuto
	case "MANUAL":
		mode = models.ModeManual
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be AUTO or MANUAL"})
		return
	}
	if err := h.services.Process.Start(c.Request.Context(), mode); err != nil {
		h.respondError(c, errStartProcess, "process_start_failed", err, "mode", mode.String())
		return
	}
	h.respondWithStatusAndState(c, statusStarted, gin.H{"mode": mode.String()})
}

// @Summary      Stop process
// @Tags         process
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/process/stop [post]
// @Security     BearerAuth
func (h *Handler) stopProcess(c *gin.Context) {
	if err := h.services.Process.Stop(c.Request.Context()); err != nil {
		h.respondError(c, errStopProcess, "process_stop_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusStopped, gin.H{})
}

// @Summary      Resume after a sensor pause
// @Description  Allowed only in PAUSE_SENSOR once the sensor fault has cleared.
// @Tags         process
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/process/resume [post]
// @Security     BearerAuth
func (h *Handler) resumeProcess(c *gin.Context) {
	if err := h.services.Process.Resume(c.Request.Context()); err != nil {
		h.respondError(c, errResumeProcess, "process_resume_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusResumed, gin.H{})
}

// @Summary      Set manual-mode values
// @Tags         process
// @Accept       json
// @Produce      json
// @Param        body  body      ManualRequest  true  "Manual settings"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/process/manual [post]
// @Security     BearerAuth
func (h *Handler) setManual(c *gin.Context) {
	var req ManualRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	m := models.ManualSettings{
		SetpointC: req.SetpointC,
		PowerMode: req.PowerMode,
		Smoke:     req.Smoke,
		FanMode:   req.FanMode,
	}
	if err := h.services.Process.SetManual(c.Request.Context(), m); err != nil {
		h.respondError(c, errSetManual, "process_set_manual_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusManualSet, gin.H{})
}

// @Summary      Get process state
// @Tags         process
// @Produce      json
// @Success      200  {object}  models.ProcessSnapshot
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/process/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	st, err := h.services.Monitoring.GetState(c.Request.Context())
	if err != nil {
		h.respondError(c, errGetState, "process_get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Diagnostics
// @Description  Sensor, actuator and flash status.
// @Tags         process
// @Produce      json
// @Success      200  {object}  service.Diagnostics
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/process/diagnostics [get]
// @Security     BearerAuth
func (h *Handler) getDiagnostics(c *gin.Context) {
	d, err := h.services.Monitoring.Diagnostics(c.Request.Context())
	if err != nil {
		h.respondError(c, errGetDiagnostics, "diagnostics_failed", err)
		return
	}
	c.JSON(http.StatusOK, d)
}
